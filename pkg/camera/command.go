package camera

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	capture "github.com/mpoegel/picam/pkg/capture"
	config "github.com/mpoegel/picam/pkg/config"
	snapshot "github.com/mpoegel/picam/pkg/snapshot"
)

type Options struct {
	Save        string
	Frequency   time.Duration
	Config      string
	WriteConfig bool
	Tool        string
	Width       int
	Height      int
	Preview     bool
	Record      string
	Timeout     time.Duration
}

func (opt *Options) register(fs *flag.FlagSet) {
	fs.StringVar(&opt.Save, "s", "file:///tmp", "place to save pictures")
	fs.DurationVar(&opt.Frequency, "f", 5*time.Second, "picture interval")
	fs.StringVar(&opt.Config, "config", "", "JSON file of camera options (default ~/.config/picam/<command>.json)")
	fs.BoolVar(&opt.WriteConfig, "write-config", false, "write the effective camera options to the config file and exit")
	fs.StringVar(&opt.Tool, "tool", "", "capture tool, overrides the config file")
	fs.IntVar(&opt.Width, "width", 0, "resize saved pictures to this width; needs -height")
	fs.IntVar(&opt.Height, "height", 0, "resize saved pictures to this height; needs -width")
	fs.DurationVar(&opt.Timeout, "timeout", 10*time.Second, "time allowed for one picture")
}

// RunStill takes a picture with the still tool at every interval.
func RunStill(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("still", flag.ExitOnError)
	opt := Options{}
	opt.register(fs)
	fs.BoolVar(&opt.Preview, "preview", false, "keep the tool running and trigger captures by keypress")

	if err := fs.Parse(args); err != nil {
		return err
	}

	path := configPath(opt.Config, "still")
	stillOpts, err := config.Load(path, DefaultStillOptions())
	if err != nil {
		return err
	}
	if opt.Tool != "" {
		stillOpts.Tool = Tool(opt.Tool)
	}
	if opt.WriteConfig {
		return writeConfig(path, stillOpts)
	}

	cam := NewStillCamera(stillOpts, slog.Default())
	if opt.Preview {
		if err := cam.StartPreview(ctx); err != nil {
			return err
		}
		defer cam.StopPreview()
	}

	return snapshotLoop(ctx, cam, opt)
}

// RunStream runs the video tool and saves a frame at every interval.
func RunStream(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	opt := Options{}
	opt.register(fs)
	fs.StringVar(&opt.Record, "record", "", "also write the raw stream to this file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	path := configPath(opt.Config, "stream")
	streamOpts, err := config.Load(path, DefaultStreamOptions())
	if err != nil {
		return err
	}
	if opt.Tool != "" {
		streamOpts.Tool = Tool(opt.Tool)
	}
	if opt.WriteConfig {
		return writeConfig(path, streamOpts)
	}

	cam := NewStreamCamera(streamOpts, slog.Default())
	if err := cam.StartCapture(ctx); err != nil {
		return err
	}
	defer cam.StopCapture()

	go logErrors(cam)

	if opt.Record != "" {
		if err := record(cam, opt.Record); err != nil {
			return err
		}
	}

	if streamOpts.Codec != CodecMJPEG {
		// Nothing to snapshot; keep recording until interrupted.
		<-ctx.Done()
		return nil
	}
	return snapshotLoop(ctx, cam, opt)
}

// configPath is the -config value, or the per-user file for the command.
func configPath(flagValue, command string) string {
	if flagValue != "" {
		return flagValue
	}
	path, err := config.DefaultPath(command)
	if err != nil {
		slog.Debug("using built-in camera options", "err", err)
		return ""
	}
	return path
}

func writeConfig[T any](path string, opts T) error {
	if path == "" {
		return errors.New("no config file to write; use -config")
	}
	if err := config.Save(path, opts); err != nil {
		return err
	}
	slog.Info("wrote camera options", "path", path)
	return nil
}

func logErrors(cam *StreamCamera) {
	errs, err := cam.Errors()
	if err != nil {
		return
	}
	for err := range errs.C() {
		slog.Warn("camera error", "err", err)
	}
}

// record copies the raw stream into filename until the capture ends.
func record(cam *StreamCamera, filename string) error {
	stream, err := cam.CreateStream()
	if err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		stream.Close()
		return err
	}

	go func() {
		defer f.Close()
		defer stream.Close()
		for chunk := range stream.C() {
			if _, err := f.Write(chunk); err != nil {
				slog.Warn("recording stopped", "file", filename, "err", err)
				return
			}
		}
		slog.Info("recording finished", "file", filename)
	}()
	return nil
}

type imageTaker interface {
	TakeImage(ctx context.Context) (capture.Frame, error)
}

// newSaver opens the -s destination, applying -width and -height to local
// saves.
func newSaver(ctx context.Context, opt Options) (snapshot.Saver, error) {
	saver, err := snapshot.NewSaver(ctx, opt.Save)
	if err != nil {
		return nil, err
	}
	if fileSaver, ok := saver.(*snapshot.FileSaver); ok {
		fileSaver.Width, fileSaver.Height = opt.Width, opt.Height
	} else if opt.Width > 0 || opt.Height > 0 {
		slog.Warn("resize only applies to file destinations", "dest", opt.Save)
	}
	return saver, nil
}

func snapshotLoop(ctx context.Context, cam imageTaker, opt Options) error {
	saver, err := newSaver(ctx, opt)
	if err != nil {
		return err
	}
	defer saver.Close()

	ticker := time.NewTicker(opt.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := takeAndSave(ctx, cam, saver, opt.Timeout); err != nil {
				if errors.Is(err, capture.ErrStreamEnded) {
					return err
				}
				slog.Warn("failed to take picture", "err", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func takeAndSave(ctx context.Context, cam imageTaker, saver snapshot.Saver, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	f, err := cam.TakeImage(ctx)
	if err != nil {
		return err
	}
	if err := saver.Save(f); err != nil {
		return fmt.Errorf("save %s: %w", f.ID, err)
	}
	slog.Debug("took picture", "id", f.ID, "bytes", len(f.Data))
	return nil
}
