package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/imagesieve/imagesieve/internal/storage"
)

// ProgressFunc receives coarse progress updates: a phase label and a percent
// in [0, 100]. It must not block the scan.
type ProgressFunc func(phase string, percent int)

// RunOptions tune a checkpointed run.
type RunOptions struct {
	// Overwrite discards any existing checkpoint and starts fresh.
	Overwrite bool
	// SaveEvery is the checkpoint cadence in scan positions; <= 0 disables
	// checkpointing entirely (nothing is loaded or stored).
	SaveEvery int
	// Progress, when set, is invoked at roughly every 10% of the scan.
	Progress ProgressFunc
	// ConfirmRestart is consulted when a checkpoint turns out to reference
	// indices beyond the corpus. Returning true discards it and restarts
	// fresh; returning false (or leaving it nil) surfaces the error.
	ConfirmRestart func() bool
}

// Result is the outcome of a grouping run.
type Result struct {
	// FilesGrouped maps each grouped corpus index to its assignment,
	// including singleton groups dropped from FileGroups.
	FilesGrouped map[int]Assignment
	// FileGroups maps group ids to their members with the scores that
	// earned each membership. Groups with fewer than two members are
	// excluded.
	FileGroups map[int]map[string]float64
	// Duplicates lists the probable-duplicate pairs in first-seen order.
	Duplicates [][2]string
}

// Run wires a corpus, a scanner and an assigner into a resumable grouping
// pass. One Run owns its corpus and checkpoint exclusively; concurrent runs
// over the same directory must be serialized by the caller.
type Run struct {
	Corpus     *Corpus
	Scanner    Scanner
	Assigner   *Assigner
	Checkpoint storage.Blob
	Options    RunOptions
}

// Execute performs the scan, checkpointing at the configured cadence and at
// completion. Cancellation is cooperative: the context is checked once per
// scan position, the current state is persisted, and ctx.Err() is returned
// so callers can distinguish it from fatal errors and keep the partial
// checkpoint.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	checksum := r.Corpus.Checksum()
	checkpointing := r.Checkpoint != nil && r.Options.SaveEvery > 0

	var cp *Checkpoint
	if checkpointing && !r.Options.Overwrite {
		loaded, err := LoadCheckpoint(r.Checkpoint, checksum, r.Scanner.Name(), r.Corpus.Len())
		switch {
		case err == nil:
			cp = loaded
		case errors.Is(err, ErrCheckpointOutOfBounds):
			if r.Options.ConfirmRestart == nil || !r.Options.ConfirmRestart() {
				return nil, err
			}
			if err := r.Checkpoint.Delete(); err != nil {
				return nil, fmt.Errorf("failed to discard checkpoint: %w", err)
			}
		default:
			return nil, err
		}
	}

	if cp != nil && cp.Complete {
		// Nothing to do: replay the finalized result
		r.Assigner.Restore(cp.Assignments, cp.NextGroup)
		return &Result{
			FilesGrouped: r.Assigner.Assignments(),
			FileGroups:   r.Assigner.Finalize(r.Corpus.Files),
			Duplicates:   r.Assigner.Duplicates(r.Corpus.Files),
		}, nil
	}

	start := 0
	if cp != nil {
		r.Assigner.Restore(cp.Assignments, cp.NextGroup)
		start = cp.Position
	} else {
		cp = NewCheckpoint(checksum, r.Scanner.Name())
	}

	total := r.Scanner.Positions()
	progressStep := max(total/10, 1)

	for pos := start; pos < total; pos++ {
		if err := ctx.Err(); err != nil {
			if checkpointing {
				r.snapshot(cp, pos)
				if storeErr := cp.Store(r.Checkpoint); storeErr != nil {
					return nil, storeErr
				}
			}
			return nil, err
		}

		if r.Options.Progress != nil && pos%progressStep == 0 {
			r.Options.Progress("comparing", pos*100/total)
		}

		if checkpointing && pos > start && pos%r.Options.SaveEvery == 0 {
			r.snapshot(cp, pos)
			if err := cp.Store(r.Checkpoint); err != nil {
				return nil, err
			}
		}

		if err := r.Scanner.ScanPosition(pos, r.Assigner.Process); err != nil {
			return nil, fmt.Errorf("scan failed at position %d: %w", pos, err)
		}
	}

	result := &Result{
		FilesGrouped: r.Assigner.Assignments(),
		FileGroups:   r.Assigner.Finalize(r.Corpus.Files),
		Duplicates:   r.Assigner.Duplicates(r.Corpus.Files),
	}

	if checkpointing {
		r.snapshot(cp, total)
		cp.Complete = true
		cp.Groups = result.FileGroups
		if err := cp.Store(r.Checkpoint); err != nil {
			return nil, err
		}
	}

	if r.Options.Progress != nil {
		r.Options.Progress("comparing", 100)
	}
	return result, nil
}

func (r *Run) snapshot(cp *Checkpoint, pos int) {
	cp.Assignments = r.Assigner.Assignments()
	cp.NextGroup = r.Assigner.NextGroup()
	cp.Position = pos
}
