package checkpoint

import "time"

// Store persists snapshots keyed by (runID, nodeID). Implementations must
// be safe for concurrent use.
type Store interface {
	// Save stores a snapshot, overwriting any existing one for the same
	// run and stage.
	Save(runID, nodeID string, data []byte) error

	// Load retrieves a snapshot, or ErrNotFound.
	Load(runID, nodeID string) ([]byte, error)

	// List returns snapshot metadata for a run ordered by sequence.
	// A run with no snapshots yields an empty result, not an error.
	List(runID string) ([]Info, error)

	// Delete removes one snapshot; absent snapshots are not an error.
	Delete(runID, nodeID string) error

	// DeleteRun removes every snapshot of a run.
	DeleteRun(runID string) error

	// Close releases underlying resources.
	Close() error
}

// Info is snapshot metadata, cheap to list without loading state.
type Info struct {
	RunID     string
	NodeID    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}
