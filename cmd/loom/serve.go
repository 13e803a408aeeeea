package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/loomui/loom/internal/demo"
	"github.com/loomui/loom/internal/dev"
	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/render"
)

func serveCmd() *cobra.Command {
	var (
		port       int
		host       string
		liveReload bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application",
		Long: `Serve the demo application over HTTP.

Every request renders the page tree to markup, embeds the dehydrated
cell state, and (with --reload) injects the live reload client.

Examples:
  loom serve
  loom serve --port=8080
  loom serve --host=0.0.0.0 --reload=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, liveReload)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to run on")
	cmd.Flags().StringVarP(&host, "host", "H", "localhost", "Host to bind to")
	cmd.Flags().BoolVar(&liveReload, "reload", true, "Inject the live reload client")

	return cmd
}

func runServe(host string, port int, liveReload bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	renderer := render.New(render.Config{Logger: logger})
	reload := dev.NewHub(logger)
	defer reload.Close()

	store := cell.NewStore()
	demo.Seed(store)

	head := ""
	if liveReload {
		head = dev.ClientScript
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := renderer.RenderPage(req.Context(), w, demo.App(store), render.PageConfig{
			Title: "Loom Demo",
			Head:  head,
			Store: store,
		})
		if err != nil {
			logger.Error("render failed", "error", err)
		}
	})
	r.Handle("/_loom/reload", reload)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", host, port)
	logger.Info("listening", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
