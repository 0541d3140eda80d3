package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st.LastEventID != "" || st.Identity != "" {
		t.Errorf("Load() of missing file should return empty state, got %+v", st)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st.LastEventID != "" {
		t.Errorf("Load() of corrupt file should return empty state, got %+v", st)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stream.json")

	want := &StreamState{
		Identity:    "u9",
		LastEventID: "ev-42",
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// No leftover temp file after the rename
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after Save()")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Identity != want.Identity {
		t.Errorf("Identity = %q, want %q", got.Identity, want.Identity)
	}
	if got.LastEventID != want.LastEventID {
		t.Errorf("LastEventID = %q, want %q", got.LastEventID, want.LastEventID)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.json")
	store := NewFileStore(path)

	if got := store.LastEventID("u9"); got != "" {
		t.Errorf("LastEventID() = %q before any save, want empty", got)
	}

	store.SetLastEventID("u9", "ev-7")
	if got := store.LastEventID("u9"); got != "ev-7" {
		t.Errorf("LastEventID() = %q, want %q", got, "ev-7")
	}

	// A different identity must not inherit the resume position
	if got := store.LastEventID("u4"); got != "" {
		t.Errorf("LastEventID() for other identity = %q, want empty", got)
	}
}
