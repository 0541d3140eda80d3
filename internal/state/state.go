// Stream resume state for the live channel.
//
// IMPORTANT: Concurrent access is not supported. Running multiple glc
// processes simultaneously may race on the state file. The last writer
// wins, which at worst makes the next connection replay events the other
// process already saw. This is a benign failure mode - the chat layer's
// dedup absorbs replayed messages.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StreamState records where the live stream left off for one identity.
// When the identity changes (account switch), the resume position is
// meaningless and must be discarded.
type StreamState struct {
	// Identity is the user the stream position belongs to.
	Identity string `json:"identity"`

	// LastEventID is the ID of the last event delivered by the server.
	// Sent as Last-Event-ID on reconnect so the stream resumes instead
	// of replaying.
	LastEventID string `json:"last_event_id"`

	// UpdatedAt is when the position was last advanced.
	UpdatedAt time.Time `json:"updated_at"`
}

// Load reads stream state from file.
// Returns empty state (triggering a fresh stream) if the file doesn't
// exist or is corrupt.
func Load(path string) (*StreamState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StreamState{}, nil
		}
		return nil, err
	}

	var st StreamState
	if err := json.Unmarshal(data, &st); err != nil {
		// Corrupt file - start a fresh stream
		return &StreamState{}, nil
	}

	return &st, nil
}

// Save writes stream state to file atomically.
// Uses the write-rename pattern to prevent corruption.
func Save(path string, st *StreamState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// FileStore is a file-backed resume store for the chat connection.
// It satisfies the chat package's ResumeStore interface.
type FileStore struct {
	path string
}

// NewFileStore creates a resume store persisting to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LastEventID returns the persisted resume position for identity, or ""
// when there is none (missing file, corrupt file, or a different identity).
func (f *FileStore) LastEventID(identity string) string {
	st, err := Load(f.path)
	if err != nil || st.Identity != identity {
		return ""
	}
	return st.LastEventID
}

// SetLastEventID advances the persisted resume position. Write failures
// are swallowed: losing the position only costs a replay, never data.
func (f *FileStore) SetLastEventID(identity, eventID string) {
	_ = Save(f.path, &StreamState{
		Identity:    identity,
		LastEventID: eventID,
		UpdatedAt:   time.Now().UTC(),
	})
}
