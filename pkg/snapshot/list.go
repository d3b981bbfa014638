package snapshot

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Entry is a saved snapshot.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"-"`
	Time time.Time `json:"time"`
}

// List returns the snapshots saved in dir, oldest first. Files whose names do
// not parse as a capture time are skipped.
func List(dir string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		name := filepath.Base(match)
		ts, err := time.ParseInLocation(TimeFormat, strings.TrimSuffix(name, Extension), time.Local)
		if err != nil {
			slog.Debug("file name does not match expected format", "file", match, "err", err)
			continue
		}
		entries = append(entries, Entry{Name: name, Path: match, Time: ts})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return a.Time.Compare(b.Time)
	})
	return entries, nil
}
