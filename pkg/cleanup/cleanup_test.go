package cleanup

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	snapshot "github.com/mpoegel/picam/pkg/snapshot"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644); err != nil {
		t.Fatal(err)
	}
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

func TestCleanup(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	old := snapshot.Filename(now.Add(-48 * time.Hour))
	recent := snapshot.Filename(now.Add(-2 * time.Hour))
	newest := snapshot.Filename(now.Add(-time.Minute))

	tests := []struct {
		name    string
		opt     Options
		removed int
		want    []string
	}{
		{"by age", Options{OlderThan: 24 * time.Hour}, 1, []string{recent, newest, "notes.txt", "porch.jpg"}},
		{"by count", Options{Keep: 1}, 2, []string{newest, "notes.txt", "porch.jpg"}},
		{"age and count", Options{OlderThan: 24 * time.Hour, Keep: 2}, 1, []string{recent, newest, "notes.txt", "porch.jpg"}},
		{"keep all", Options{}, 0, []string{old, recent, newest, "notes.txt", "porch.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range []string{old, recent, newest, "notes.txt", "porch.jpg"} {
				touch(t, dir, name)
			}
			tt.opt.SaveDir = dir

			removed, err := cleanup(tt.opt, now)
			if err != nil {
				t.Fatal(err)
			}
			if removed != tt.removed {
				t.Errorf("removed %d, want %d", removed, tt.removed)
			}
			want := slices.Clone(tt.want)
			slices.Sort(want)
			if got := remaining(t, dir); !slices.Equal(got, want) {
				t.Errorf("remaining = %q, want %q", got, want)
			}
		})
	}
}

func TestCleanup_MissingDir(t *testing.T) {
	removed, err := cleanup(Options{SaveDir: filepath.Join(t.TempDir(), "missing"), Keep: 1}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed %d", removed)
	}
}
