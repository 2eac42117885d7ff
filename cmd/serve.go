package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imagesieve/imagesieve/internal/config"
	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/extract"
	"github.com/imagesieve/imagesieve/internal/metric"
	"github.com/imagesieve/imagesieve/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve [directory]",
	Short: "Serve search and grouping over HTTP",
	Long: `Start an HTTP server exposing the directory's embedding corpus.
POST /api/v1/search ranks the corpus against query vectors or a text prompt;
POST /api/v1/group runs the grouping pipeline and returns the groups.

Example:
  imagesieve serve ./photos --port 8080`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().Bool("recursive", false, "Include subdirectories")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := args[0]
	host := mustGetString(cmd, "host")
	port := mustGetInt(cmd, "port")
	recursive := mustGetBool(cmd, "recursive")

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Building embedding corpus for %s...\n", dir)
	corpus, _, err := buildCorpus(ctx, cfg, dir, "embedding", recursive)
	if err != nil {
		return err
	}
	fmt.Printf("Corpus ready: %d files.\n", corpus.Len())

	m := metric.NewEmbedding()
	deps := web.Deps{
		Corpus:   corpus,
		Metric:   m,
		// Memoize text queries: the search endpoint re-embeds every request
		Embedder: extract.NewTextCache(extract.NewEmbedClient(cfg.Embedding.URL), 0),
		Group: func(gctx context.Context) (*engine.Result, error) {
			run, err := newGroupRun(cfg, corpus, m, dir, "embedding", "matrix", engine.RunOptions{
				Overwrite: true,
				SaveEvery: cfg.Scan.SaveEvery,
			})
			if err != nil {
				return nil, err
			}
			return run.Execute(gctx)
		},
	}

	server := web.NewServer(cfg, host, port, deps)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Listening on http://%s:%d\n", host, port)
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
