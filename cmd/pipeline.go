package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/imagesieve/imagesieve/internal/config"
	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/extract"
	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/metric"
	"github.com/imagesieve/imagesieve/internal/storage"
)

// cacheDirName is the per-directory cache holding feature blobs, checkpoints
// and the query index.
const cacheDirName = ".imagesieve"

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// listImages collects image files under dir in sorted order. Sorted input
// keeps scan order, group numbering and checksums stable between runs.
func listImages(dir string, recursive bool) ([]string, error) {
	var files []string

	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == cacheDirName {
					return filepath.SkipDir
				}
				return nil
			}
			if imageExtensions[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot walk folder %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// cachePath returns the path of a named cache artifact for dir.
func cachePath(dir, name string) string {
	return filepath.Join(dir, cacheDirName, name)
}

// newMetric builds the comparison metric for a mode name.
func newMetric(mode string, sizeTolerance int) (metric.Metric, error) {
	switch mode {
	case "embedding":
		return metric.NewEmbedding(), nil
	case "colors":
		return metric.NewColors(), nil
	case "prompts":
		return metric.NewPrompts(), nil
	case "models":
		return metric.NewModels(), nil
	case "size":
		return metric.NewSize(sizeTolerance), nil
	default:
		return nil, fmt.Errorf("unknown comparison mode %q", mode)
	}
}

// newExtractor builds the feature extractor matching a mode name.
func newExtractor(ctx context.Context, cfg *config.Config, mode string) (feature.ExtractFunc, error) {
	switch mode {
	case "embedding":
		return extract.NewEmbedClient(cfg.Embedding.URL).ExtractFunc(ctx), nil
	case "colors":
		return extract.Colors, nil
	case "prompts":
		return extract.PromptValue, nil
	case "models":
		return extract.ModelValue, nil
	case "size":
		return extract.Size, nil
	default:
		return nil, fmt.Errorf("unknown comparison mode %q", mode)
	}
}

// openStore opens the per-directory feature cache for a mode.
func openStore(dir, mode string, extractor feature.ExtractFunc) (*feature.Store, error) {
	blob := storage.NewFileBlob(cachePath(dir, mode+".gob"))
	store, err := feature.NewStore(blob, extractor)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s feature cache: %w", mode, err)
	}
	return store, nil
}

// buildCorpus extracts features for every image under dir and persists the
// cache afterwards, including partial progress when extraction fails.
func buildCorpus(ctx context.Context, cfg *config.Config, dir, mode string, recursive bool) (*engine.Corpus, *feature.Store, error) {
	files, err := listImages(dir, recursive)
	if err != nil {
		return nil, nil, err
	}

	extractor, err := newExtractor(ctx, cfg, mode)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(dir, mode, extractor)
	if err != nil {
		return nil, nil, err
	}

	corpus, err := engine.BuildCorpus(store, files)
	if saveErr := store.Save(false); saveErr != nil && err == nil {
		err = saveErr
	}
	if err != nil {
		return nil, nil, err
	}
	return corpus, store, nil
}

// newProgressListener renders run progress as a terminal bar. Quiet mode
// (JSON output) returns nil so the run stays silent.
func newProgressListener(description string, quiet bool) engine.ProgressFunc {
	if quiet {
		return nil
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	return func(phase string, percent int) {
		_ = bar.Set(percent)
		if percent >= 100 {
			fmt.Fprintln(os.Stderr)
		}
	}
}
