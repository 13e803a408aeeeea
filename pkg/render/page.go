package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/element"
)

// PageConfig describes the document shell wrapped around a rendered tree.
type PageConfig struct {
	// Title is the document title. Empty titles render an empty element.
	Title string
	// Lang is the html element's lang attribute. Defaults to "en".
	Lang string
	// Head is raw markup injected verbatim into <head> (stylesheets,
	// meta tags, script tags). The caller owns its safety.
	Head string
	// ContainerID is the id of the mount container. Defaults to "app".
	ContainerID string
	// Store, when set, has its serializable cells dehydrated into a JSON
	// script block the client reads before hydrating.
	Store *cell.Store
	// StateID is the id of the state script block. Defaults to
	// "loom-state".
	StateID string
}

// RenderPage renders a full HTML document: doctype, shell, the element
// tree inside the mount container, and the dehydrated cell state as an
// application/json script block.
func (r *Renderer) RenderPage(ctx context.Context, w io.Writer, root *element.Element, cfg PageConfig) error {
	lang := cfg.Lang
	if lang == "" {
		lang = "en"
	}
	containerID := cfg.ContainerID
	if containerID == "" {
		containerID = "app"
	}
	stateID := cfg.StateID
	if stateID == "" {
		stateID = "loom-state"
	}

	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n", escapeAttr(lang)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "<meta charset=\"utf-8\">\n<title>%s</title>\n", escapeHTML(cfg.Title)); err != nil {
		return err
	}
	if cfg.Head != "" {
		if _, err := io.WriteString(w, cfg.Head+"\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "</head>\n<body>\n<div id=\"%s\">", escapeAttr(containerID)); err != nil {
		return err
	}

	if err := r.RenderToWriter(ctx, w, root); err != nil {
		return err
	}

	if _, err := io.WriteString(w, "</div>\n"); err != nil {
		return err
	}
	if cfg.Store != nil {
		if err := writeStateBlock(w, cfg.Store, stateID); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

// writeStateBlock emits the dehydrated cell state as an ordered JSON
// array inside a typed script element. "</" sequences are broken so the
// payload cannot terminate the script element early.
func writeStateBlock(w io.Writer, store *cell.Store, id string) error {
	payload, err := json.Marshal(store.Dehydrate())
	if err != nil {
		return fmt.Errorf("render: marshal state: %w", err)
	}
	safe := strings.ReplaceAll(string(payload), "</", "<\\/")
	_, err = fmt.Fprintf(w, "<script type=\"application/json\" id=\"%s\">%s</script>\n", escapeAttr(id), safe)
	return err
}
