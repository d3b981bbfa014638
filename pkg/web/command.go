package web

import (
	"context"
	"flag"
	"log/slog"
	"time"

	camera "github.com/mpoegel/picam/pkg/camera"
	config "github.com/mpoegel/picam/pkg/config"
	schema "github.com/mpoegel/picam/pkg/schema"
)

type Options struct {
	Addr            string
	Title           string
	CollectionAddr  string
	Config          string
	SnapshotTimeout time.Duration
	MaxPending      int
}

func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("web", flag.ExitOnError)
	opt := Options{}

	fs.StringVar(&opt.Addr, "l", ":8080", "listen address")
	fs.StringVar(&opt.Title, "title", "picam", "page title")
	fs.StringVar(&opt.CollectionAddr, "collection", "", "address of a collector to show instead of the local camera")
	fs.StringVar(&opt.Config, "config", "", "JSON file of stream options for the local camera")
	fs.DurationVar(&opt.SnapshotTimeout, "snapshot-timeout", 5*time.Second, "time allowed to wait for a snapshot")
	fs.IntVar(&opt.MaxPending, "pending", 4, "frames queued per viewer before the oldest is dropped")

	if err := fs.Parse(args); err != nil {
		return err
	}

	source, stop, err := openSource(ctx, opt)
	if err != nil {
		return err
	}
	defer stop()

	server, err := NewServer(opt, source)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		server.Stop()
	}()

	return server.Start()
}

// openSource follows a collector when one is given and otherwise runs the
// local camera.
func openSource(ctx context.Context, opt Options) (Source, func(), error) {
	if opt.CollectionAddr != "" {
		conn, err := schema.Dial(opt.CollectionAddr)
		if err != nil {
			return nil, nil, err
		}
		remote := NewRemoteSource(schema.NewImageServiceClient(conn), time.Second, opt.MaxPending)
		go remote.Run(ctx)
		return remote, func() { conn.Close() }, nil
	}

	streamOpts, err := config.Load(opt.Config, camera.DefaultStreamOptions())
	if err != nil {
		return nil, nil, err
	}
	streamOpts.Codec = camera.CodecMJPEG
	if streamOpts.MaxPending == 0 {
		streamOpts.MaxPending = opt.MaxPending
	}

	cam := camera.NewStreamCamera(streamOpts, slog.Default())
	if err := cam.StartCapture(ctx); err != nil {
		return nil, nil, err
	}
	return cam, cam.StopCapture, nil
}
