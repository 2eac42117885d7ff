package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/imagesieve/imagesieve/internal/config"
	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/metric"
	"github.com/imagesieve/imagesieve/internal/storage"
)

var groupCmd = &cobra.Command{
	Use:   "group [directory]",
	Short: "Group similar images in a directory",
	Long: `Scan a directory and group similar images under the selected
comparison mode. Progress is checkpointed, so an interrupted scan resumes
where it left off as long as the file set is unchanged.

Examples:
  # Group by CLIP embedding (requires a running embedding server)
  imagesieve group ./photos

  # Group by color fingerprint, including subdirectories
  imagesieve group ./photos --mode colors --recursive

  # Throw away an existing checkpoint and start over
  imagesieve group ./photos --overwrite

  # Machine-readable output
  imagesieve group ./photos --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGroup,
}

func init() {
	rootCmd.AddCommand(groupCmd)

	groupCmd.Flags().String("mode", "embedding", "Comparison mode: embedding, colors, prompts, models or size")
	groupCmd.Flags().String("scanner", "matrix", "Pair enumeration strategy: matrix or rotation")
	groupCmd.Flags().Int("tolerance", 0, "Allowed dimension difference in size mode (pixels)")
	groupCmd.Flags().Bool("recursive", false, "Include subdirectories")
	groupCmd.Flags().Bool("overwrite", false, "Discard any existing checkpoint and start fresh")
	groupCmd.Flags().Bool("json", false, "Output as JSON")
}

// groupOutput is the JSON output structure of the group command.
type groupOutput struct {
	Mode       string                     `json:"mode"`
	Files      int                        `json:"files"`
	Groups     map[int]map[string]float64 `json:"groups"`
	Duplicates [][2]string                `json:"duplicates"`
}

func runGroup(cmd *cobra.Command, args []string) error {
	dir := args[0]
	mode := mustGetString(cmd, "mode")
	scannerName := mustGetString(cmd, "scanner")
	tolerance := mustGetInt(cmd, "tolerance")
	recursive := mustGetBool(cmd, "recursive")
	overwrite := mustGetBool(cmd, "overwrite")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := newMetric(mode, tolerance)
	if err != nil {
		return err
	}

	if !jsonOutput {
		fmt.Printf("Scanning %s (%s mode)...\n", dir, mode)
	}

	corpus, _, err := buildCorpus(ctx, cfg, dir, mode, recursive)
	if err != nil {
		return err
	}
	if corpus.Len() == 0 {
		return fmt.Errorf("no images with %s features found in %s", mode, dir)
	}

	run, err := newGroupRun(cfg, corpus, m, dir, mode, scannerName, engine.RunOptions{
		Overwrite:      overwrite,
		SaveEvery:      cfg.Scan.SaveEvery,
		Progress:       newProgressListener("Comparing", jsonOutput),
		ConfirmRestart: confirmRestart,
	})
	if err != nil {
		return err
	}

	result, err := run.Execute(ctx)
	if err != nil {
		return fmt.Errorf("grouping failed: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(groupOutput{
			Mode:       mode,
			Files:      corpus.Len(),
			Groups:     result.FileGroups,
			Duplicates: result.Duplicates,
		})
	}

	printGroups(result)
	return nil
}

// newGroupRun wires the scanner, assigner and checkpoint for one grouping
// run. The checkpoint blob is per mode so switching modes never poisons a
// resume.
func newGroupRun(cfg *config.Config, corpus *engine.Corpus, m metric.Metric, dir, mode, scannerName string, opts engine.RunOptions) (*engine.Run, error) {
	th := cfg.ModeThresholds(mode)

	var scanner engine.Scanner
	switch scannerName {
	case "matrix":
		scanner = engine.NewMatrixScanner(corpus, m, th.Related, cfg.Scan.MemoryBudget)
	case "rotation":
		scanner = engine.NewRotationScanner(corpus, m, th.Related)
	default:
		return nil, fmt.Errorf("unknown scanner %q", scannerName)
	}

	return &engine.Run{
		Corpus:     corpus,
		Scanner:    scanner,
		Assigner:   engine.NewAssigner(m.Polarity(), th.Duplicate, th.GroupCutoff),
		Checkpoint: storage.NewFileBlob(cachePath(dir, "checkpoint-"+mode+".gob")),
		Options:    opts,
	}, nil
}

// confirmRestart asks the user whether a stale checkpoint may be discarded.
func confirmRestart() bool {
	fmt.Fprint(os.Stderr, "Checkpoint does not match the current file set. Discard it and restart? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func printGroups(result *engine.Result) {
	if len(result.FileGroups) == 0 {
		fmt.Println("No similar images found.")
		return
	}

	groupIDs := make([]int, 0, len(result.FileGroups))
	for id := range result.FileGroups {
		groupIDs = append(groupIDs, id)
	}
	sort.Ints(groupIDs)

	fmt.Printf("\nFound %d groups:\n\n", len(groupIDs))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tFILE\tSCORE")
	fmt.Fprintln(w, "-----\t----\t-----")
	for _, id := range groupIDs {
		members := result.FileGroups[id]
		paths := make([]string, 0, len(members))
		for p := range members {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(w, "%d\t%s\t%.4f\n", id, p, members[p])
		}
	}
	w.Flush()

	if len(result.Duplicates) > 0 {
		fmt.Printf("\nProbable duplicates (%d pairs):\n\n", len(result.Duplicates))
		dw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, pair := range result.Duplicates {
			fmt.Fprintf(dw, "%s\t%s\n", pair[0], pair[1])
		}
		dw.Flush()
	}
}
