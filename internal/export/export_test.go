package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/render"
)

func TestExportWritesPages(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(render.New(render.Config{}), dir, nil)

	pages := []Page{
		{Path: "/", Root: element.El("h1", "home"), Cfg: render.PageConfig{Title: "Home"}},
		{Path: "/about", Root: element.El("h1", "about"), Cfg: render.PageConfig{Title: "About"}},
	}
	files, err := e.Export(context.Background(), pages)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(files) != 2 || files[0] != "index.html" || files[1] != "about/index.html" {
		t.Fatalf("files = %v", files)
	}

	data, err := os.ReadFile(filepath.Join(dir, "about", "index.html"))
	if err != nil {
		t.Fatalf("read exported file: %v", err)
	}
	if !strings.Contains(string(data), "<h1>about</h1>") {
		t.Fatalf("exported markup = %s", data)
	}
	if !strings.Contains(string(data), "<!DOCTYPE html>") {
		t.Fatalf("exported file is not a full document: %s", data)
	}
}

func TestPageFileMapping(t *testing.T) {
	cases := []struct{ path, want string }{
		{"/", "index.html"},
		{"", "index.html"},
		{"/about", "about/index.html"},
		{"/docs/intro", "docs/intro/index.html"},
		{"/legacy.html", "legacy.html"},
	}
	for _, tc := range cases {
		if got := pageFile(tc.path); got != tc.want {
			t.Errorf("pageFile(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func TestS3PublisherUploadsFiles(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(render.New(render.Config{}), dir, nil)
	files, err := e.Export(context.Background(), []Page{
		{Path: "/", Root: element.El("h1", "home")},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	fake := &fakePutter{}
	p := NewS3Publisher(fake, "my-bucket", "site", nil)
	if err := p.Publish(context.Background(), dir, files); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(fake.inputs) != 1 {
		t.Fatalf("puts = %d, want 1", len(fake.inputs))
	}
	in := fake.inputs[0]
	if *in.Bucket != "my-bucket" {
		t.Fatalf("bucket = %q", *in.Bucket)
	}
	if *in.Key != "site/index.html" {
		t.Fatalf("key = %q", *in.Key)
	}
	if !strings.HasPrefix(*in.ContentType, "text/html") {
		t.Fatalf("content type = %q", *in.ContentType)
	}
}

func TestS3PublisherNoPrefix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakePutter{}
	p := NewS3Publisher(fake, "my-bucket", "", nil)
	if err := p.Publish(context.Background(), dir, []string{"index.html"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if *fake.inputs[0].Key != "index.html" {
		t.Fatalf("key = %q", *fake.inputs[0].Key)
	}
}

func TestS3PublisherPropagatesErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakePutter{err: errors.New("access denied")}
	p := NewS3Publisher(fake, "my-bucket", "", nil)
	err := p.Publish(context.Background(), dir, []string{"index.html"})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("err = %v", err)
	}
}
