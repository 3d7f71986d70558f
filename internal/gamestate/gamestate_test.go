package gamestate

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func newTestFile(t *testing.T) (*File, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, "/data/game_state.json"), fs
}

func TestSaveThenLoad(t *testing.T) {
	f, _ := newTestFile(t)
	states := []string{
		`{"teams":[{"name":"Red","money":1500}],"turn":3}`,
		`"just a string"`,
		"{\n  \"pretty\": true\n}\n",
		`[]`,
	}
	for _, want := range states {
		if err := f.Save(want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := f.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != want {
			t.Errorf("Load = %q, want %q", got, want)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	f, _ := newTestFile(t)
	if _, err := f.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	f, _ := newTestFile(t)
	if err := f.Save("{not json"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := f.Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Load error = %v, want ErrInvalid", err)
	}
}

func TestReset(t *testing.T) {
	f, fs := newTestFile(t)
	if err := f.Save(`{"a":1}`); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := f.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := f.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Reset error = %v, want ErrNotFound", err)
	}
	if ok, _ := afero.Exists(fs, f.Path()); ok {
		t.Error("state file still exists after Reset")
	}
	// Resetting again is fine.
	if err := f.Reset(); err != nil {
		t.Errorf("second Reset: %v", err)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	f, fs := newTestFile(t)
	for i := 0; i < 3; i++ {
		if err := f.Save(`{}`); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := afero.ReadDir(fs, "/data")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "game_state.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contents = %v, want only game_state.json", names)
	}
}
