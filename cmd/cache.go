package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/imagesieve/imagesieve/internal/config"
	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/storage/postgres"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the per-directory feature cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info [directory]",
	Short: "Show how many features are cached per comparison mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheInfo,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [directory]",
	Short: "Delete the feature cache, checkpoints and saved indexes",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheClear,
}

var cachePushCmd = &cobra.Command{
	Use:   "push [directory]",
	Short: "Upload cached embeddings to the shared database",
	Long: `Copy the locally cached embedding vectors into the PostgreSQL corpus
store configured via DATABASE_URL, so other machines can pull them instead of
re-running the embedding model.`,
	Args: cobra.ExactArgs(1),
	RunE: runCachePush,
}

var cachePullCmd = &cobra.Command{
	Use:   "pull [directory]",
	Short: "Download shared embeddings into the local cache",
	Long: `Fetch embedding vectors from the PostgreSQL corpus store configured
via DATABASE_URL and merge them into the local cache. Only vectors for files
that exist under the directory are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runCachePull,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePushCmd)
	cacheCmd.AddCommand(cachePullCmd)
}

// cacheModes are the comparison modes with a persisted feature blob.
var cacheModes = []string{"embedding", "colors", "prompts", "models", "size"}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	dir := args[0]

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tCACHED")
	fmt.Fprintln(w, "----\t------")
	for _, mode := range cacheModes {
		// nil extractor: the store is only read, never asked to compute.
		store, err := openStore(dir, mode, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", mode, store.Len())
	}
	return w.Flush()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cacheDir := filepath.Join(dir, cacheDirName)
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		fmt.Println("Nothing to clear.")
		return nil
	}
	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Printf("Removed %s\n", cacheDir)
	return nil
}

func runCachePush(cmd *cobra.Command, args []string) error {
	dir := args[0]
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closePool, err := connectRepository(cfg)
	if err != nil {
		return err
	}
	defer closePool()

	store, err := openStore(dir, "embedding", nil)
	if err != nil {
		return err
	}

	var batch []postgres.StoredEmbedding
	for _, path := range store.Paths() {
		v, ok := store.Get(path)
		if !ok {
			continue
		}
		vec, ok := v.(feature.Vector)
		if !ok {
			continue
		}
		batch = append(batch, postgres.StoredEmbedding{Path: path, Embedding: vec})
	}
	if len(batch) == 0 {
		fmt.Println("No cached embeddings to push.")
		return nil
	}

	if err := repo.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to push embeddings: %w", err)
	}
	fmt.Printf("Pushed %d embeddings.\n", len(batch))
	return nil
}

func runCachePull(cmd *cobra.Command, args []string) error {
	dir := args[0]
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closePool, err := connectRepository(cfg)
	if err != nil {
		return err
	}
	defer closePool()

	store, err := openStore(dir, "embedding", nil)
	if err != nil {
		return err
	}

	stored, err := repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch embeddings: %w", err)
	}

	var pulled int
	for _, e := range stored {
		if _, err := os.Stat(e.Path); err != nil {
			continue
		}
		if _, ok := store.Get(e.Path); ok {
			continue
		}
		store.Put(e.Path, e.Embedding)
		pulled++
	}

	if err := store.Save(false); err != nil {
		return err
	}
	fmt.Printf("Pulled %d embeddings (%d available remotely).\n", pulled, len(stored))
	return nil
}

func connectRepository(cfg *config.Config) (*postgres.EmbeddingRepository, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := postgres.Connect(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewEmbeddingRepository(pool), func() { _ = pool.Close() }, nil
}
