package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/imagesieve/imagesieve/internal/storage"
)

// checkpointVersion guards the gob schema. Loading a checkpoint written
// under a different version discards it rather than guessing at fields.
// Version 2 added the scanner name.
const checkpointVersion = 2

// Checkpoint is the persisted snapshot of a partially completed run.
type Checkpoint struct {
	Version     int
	RunID       string
	Checksum    string
	Scanner     string
	Assignments map[int]Assignment
	Groups      map[int]map[string]float64
	NextGroup   int
	Position    int
	Complete    bool
}

// NewCheckpoint stamps a fresh checkpoint with a run identity, the corpus
// checksum it is bound to and the scanner whose positions it counts.
func NewCheckpoint(checksum, scanner string) *Checkpoint {
	return &Checkpoint{
		Version:     checkpointVersion,
		RunID:       uuid.New().String(),
		Checksum:    checksum,
		Scanner:     scanner,
		Assignments: make(map[int]Assignment),
	}
}

// LoadCheckpoint reads and validates a checkpoint against the current corpus
// snapshot and scan strategy. It returns (nil, nil) when no usable checkpoint
// exists: missing, undecodable, or written under another schema version. A
// checksum mismatch returns ErrChecksumMismatch, a different scanner returns
// ErrScannerMismatch, and stored indices beyond n return
// ErrCheckpointOutOfBounds.
func LoadCheckpoint(blob storage.Blob, checksum, scanner string, n int) (*Checkpoint, error) {
	data, ok, err := blob.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var cp Checkpoint
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cp); err != nil {
		log.Printf("discarding undecodable checkpoint: %v", err)
		return nil, nil
	}
	if cp.Version != checkpointVersion {
		log.Printf("discarding checkpoint with version %d (want %d)", cp.Version, checkpointVersion)
		return nil, nil
	}

	if cp.Checksum != checksum {
		return nil, ErrChecksumMismatch
	}
	if cp.Scanner != scanner {
		return nil, fmt.Errorf("%w: checkpoint from %q scan, running %q", ErrScannerMismatch, cp.Scanner, scanner)
	}
	for index := range cp.Assignments {
		if index < 0 || index >= n {
			return nil, fmt.Errorf("%w: index %d with %d files", ErrCheckpointOutOfBounds, index, n)
		}
	}
	return &cp, nil
}

// Store persists the checkpoint through the blob.
func (cp *Checkpoint) Store(blob storage.Blob) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(cp); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := blob.Save(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}
