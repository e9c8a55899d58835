// Package checkpoint persists per-stage state snapshots so an interrupted
// run can be inspected or resumed.
package checkpoint

import (
	"encoding/json"
	"errors"
	"time"
)

// Version is the snapshot format version. Bump on breaking layout changes.
const Version = 1

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no snapshot exists for the requested key.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)

// Checkpoint is one persisted snapshot: the serialized state after a stage
// completed, plus enough metadata to know where the run stood.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	State      json.RawMessage `json:"state"`
	NextNode   string          `json:"next_node"`
	PrevNodeID string          `json:"prev_node_id,omitempty"`
}

// New builds a snapshot for a completed stage. state must already be
// JSON-serialized.
func New(runID, nodeID string, sequence int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
	}
}

// WithPrevNode records the stage executed before this one.
func (c *Checkpoint) WithPrevNode(prev string) *Checkpoint {
	c.PrevNodeID = prev
	return c
}

// Marshal serializes the snapshot to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal parses a snapshot from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
