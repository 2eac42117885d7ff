package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/imagesieve/imagesieve/internal/config"
	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/extract"
	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/index"
)

var searchCmd = &cobra.Command{
	Use:   "search [directory]",
	Short: "Search a directory for images matching a query",
	Long: `Rank the images in a directory against one or more query images or a
text prompt. Query images pull matching files up the ranking; negative query
images pull them down.

Examples:
  # Find images similar to a reference photo
  imagesieve search ./photos --image ref.jpg

  # Text search through the embedding server
  imagesieve search ./photos --text "a cat on a windowsill"

  # Text search through the OpenAI embeddings API
  imagesieve search ./photos --text "sunset" --provider openai

  # Everything above a similarity threshold, not just the top ranks
  imagesieve search ./photos --image ref.jpg --closest-only

  # Approximate search on a large corpus
  imagesieve search ./photos --image ref.jpg --ann`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("mode", "embedding", "Comparison mode: embedding, colors, prompts, models or size")
	searchCmd.Flags().StringSlice("image", nil, "Query image (repeatable)")
	searchCmd.Flags().StringSlice("negative", nil, "Negative query image (repeatable)")
	searchCmd.Flags().String("text", "", "Text query (embedding mode only)")
	searchCmd.Flags().String("provider", "local", "Text embedding provider: local, openai or gemini")
	searchCmd.Flags().Float64("threshold", 0, "Similarity cutoff for --closest-only (0 = mode default)")
	searchCmd.Flags().Int("limit", 10, "Maximum number of results")
	searchCmd.Flags().Bool("closest-only", false, "Return everything above the threshold instead of the top ranks")
	searchCmd.Flags().Bool("ann", false, "Use the approximate index (embedding mode, single query image)")
	searchCmd.Flags().Int("tolerance", 0, "Allowed dimension difference in size mode (pixels)")
	searchCmd.Flags().Bool("recursive", false, "Include subdirectories")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

// textEmbedder is satisfied by the local embedding server and by the hosted
// OpenAI and Gemini clients.
type textEmbedder interface {
	Text(ctx context.Context, text string) (feature.Vector, error)
}

func runSearch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	mode := mustGetString(cmd, "mode")
	images := mustGetStringSlice(cmd, "image")
	negatives := mustGetStringSlice(cmd, "negative")
	text := mustGetString(cmd, "text")
	provider := mustGetString(cmd, "provider")
	threshold := mustGetFloat64(cmd, "threshold")
	limit := mustGetInt(cmd, "limit")
	closestOnly := mustGetBool(cmd, "closest-only")
	useANN := mustGetBool(cmd, "ann")
	tolerance := mustGetInt(cmd, "tolerance")
	recursive := mustGetBool(cmd, "recursive")
	jsonOutput := mustGetBool(cmd, "json")

	if len(images) == 0 && text == "" {
		return fmt.Errorf("nothing to search for: pass --image or --text")
	}
	if text != "" && mode != "embedding" {
		return fmt.Errorf("--text requires embedding mode")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := newMetric(mode, tolerance)
	if err != nil {
		return err
	}

	corpus, _, err := buildCorpus(ctx, cfg, dir, mode, recursive)
	if err != nil {
		return err
	}

	positive, negative, textOnly, err := buildQueries(ctx, cfg, mode, provider, images, negatives, text)
	if err != nil {
		return err
	}

	if threshold == 0 {
		threshold = cfg.ModeThresholds(mode).Related
	}

	var matches []engine.Match
	if useANN {
		matches, err = searchIndexed(cfg, dir, corpus, positive, limit, threshold, closestOnly)
	} else {
		matches, err = engine.MatchQuery(corpus, m, positive, negative, engine.QueryOptions{
			Threshold:   threshold,
			TextOnly:    textOnly,
			MaxResults:  limit,
			ClosestOnly: closestOnly,
		})
	}
	if err != nil {
		if errors.Is(err, engine.ErrNoResults) {
			return fmt.Errorf("no results: %w", err)
		}
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(matches)
	}
	printMatches(matches)
	return nil
}

// buildQueries extracts feature values for the query images and embeds the
// text query. textOnly reports that the text prompt is the only positive,
// which loosens the match threshold downstream.
func buildQueries(ctx context.Context, cfg *config.Config, mode, provider string, images, negatives []string, text string) (positive, negative []feature.Value, textOnly bool, err error) {
	extractor, err := newExtractor(ctx, cfg, mode)
	if err != nil {
		return nil, nil, false, err
	}

	for _, path := range images {
		v, err := extractor(path)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to extract query image %s: %w", path, err)
		}
		positive = append(positive, v)
	}
	for _, path := range negatives {
		v, err := extractor(path)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to extract negative query image %s: %w", path, err)
		}
		negative = append(negative, v)
	}

	if text != "" {
		embedder, err := newTextEmbedder(ctx, cfg, provider)
		if err != nil {
			return nil, nil, false, err
		}
		vec, err := embedder.Text(ctx, text)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to embed text query: %w", err)
		}
		textOnly = len(positive) == 0
		positive = append(positive, vec)
	}
	return positive, negative, textOnly, nil
}

func newTextEmbedder(ctx context.Context, cfg *config.Config, provider string) (textEmbedder, error) {
	switch provider {
	case "local":
		return extract.NewEmbedClient(cfg.Embedding.URL), nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("OPENAI_TOKEN is not set")
		}
		return extract.NewOpenAIEmbedder(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return extract.NewGeminiEmbedder(ctx, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// searchIndexed answers the query through the HNSW index, reusing a saved
// graph when it still matches the corpus snapshot.
func searchIndexed(cfg *config.Config, dir string, corpus *engine.Corpus, positive []feature.Value, limit int, threshold float64, closestOnly bool) ([]engine.Match, error) {
	if len(positive) != 1 {
		return nil, fmt.Errorf("--ann needs exactly one positive query")
	}
	query, ok := positive[0].(feature.Vector)
	if !ok {
		return nil, fmt.Errorf("--ann needs a vector query")
	}

	indexPath := cfg.Database.HNSWIndexPath
	if indexPath == "" {
		indexPath = cachePath(dir, "index.hnsw")
	}

	x := index.New()
	checksum := corpus.Checksum()
	if index.Stale(indexPath, checksum) {
		if err := x.Build(corpus); err != nil {
			return nil, fmt.Errorf("failed to build index: %w", err)
		}
		if err := x.Save(indexPath, checksum); err != nil {
			return nil, fmt.Errorf("failed to save index: %w", err)
		}
	} else {
		if err := x.Load(indexPath); err != nil {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
		x.Rebuild(corpus)
	}

	if closestOnly {
		return x.SearchAbove(query, limit, threshold)
	}
	return x.Search(query, limit)
}

func printMatches(matches []engine.Match) {
	if len(matches) == 0 {
		fmt.Println("No matches.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFILE")
	fmt.Fprintln(w, "-----\t----")
	for _, m := range matches {
		fmt.Fprintf(w, "%.4f\t%s\n", m.Score, m.Path)
	}
	w.Flush()
}
