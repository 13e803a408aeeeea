package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomui/loom/internal/demo"
	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/render"
)

func renderCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the demo page to stdout",
		Long: `Render the demo page to a full HTML document on stdout,
including the dehydrated cell state block.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			renderer := render.New(render.Config{Logger: logger})

			store := cell.NewStore()
			demo.Seed(store)

			return renderer.RenderPage(cmd.Context(), os.Stdout, demo.App(store), render.PageConfig{
				Title: title,
				Store: store,
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "Loom Demo", "Document title")

	return cmd
}
