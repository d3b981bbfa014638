package cleanup

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	snapshot "github.com/mpoegel/picam/pkg/snapshot"
)

type Options struct {
	SaveDir   string
	OlderThan time.Duration
	Keep      int
	Interval  time.Duration
}

func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	opt := Options{}

	fs.StringVar(&opt.SaveDir, "d", "/tmp", "directory in which to delete saved pictures")
	fs.DurationVar(&opt.OlderThan, "s", 24*7*time.Hour, "delete pictures older than this duration from now; 0 keeps all")
	fs.IntVar(&opt.Keep, "keep", 0, "keep at most this many of the newest pictures; 0 keeps all")
	fs.DurationVar(&opt.Interval, "every", 0, "repeat at this interval until stopped; 0 runs once")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if opt.Interval <= 0 {
		_, err := cleanup(opt, time.Now())
		return err
	}

	ticker := time.NewTicker(opt.Interval)
	defer ticker.Stop()
	for {
		if _, err := cleanup(opt, time.Now()); err != nil {
			slog.Warn("cleanup failed", "dir", opt.SaveDir, "err", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// cleanup removes the snapshots that are older than opt.OlderThan at now or
// that fall outside the newest opt.Keep. It returns how many were removed.
func cleanup(opt Options, now time.Time) (int, error) {
	entries, err := snapshot.List(opt.SaveDir)
	if err != nil {
		return 0, err
	}

	cutoffTime := now.Add(-opt.OlderThan)
	excess := 0
	if opt.Keep > 0 && len(entries) > opt.Keep {
		excess = len(entries) - opt.Keep
	}

	removed := 0
	for i, entry := range entries {
		expired := opt.OlderThan > 0 && cutoffTime.After(entry.Time)
		if !expired && i >= excess {
			continue
		}
		if err := os.Remove(entry.Path); err != nil {
			slog.Error("failed to remove file", "file", entry.Path, "err", err)
			continue
		}
		removed++
		slog.Info("file removed", "file", entry.Path)
	}
	return removed, nil
}
