package web

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	broker "github.com/mpoegel/picam/pkg/broker"
	capture "github.com/mpoegel/picam/pkg/capture"
	schema "github.com/mpoegel/picam/pkg/schema"
	emptypb "google.golang.org/protobuf/types/known/emptypb"
)

// Source supplies the frames the server shows. A *camera.StreamCamera is a
// Source.
type Source interface {
	Subscribe() (*broker.Subscription[capture.Frame], error)
}

// RemoteSource relays a collector's live stream.
type RemoteSource struct {
	client schema.ImageServiceClient
	retry  time.Duration
	frames *broker.Broker[capture.Frame]
	seq    uint64
}

func NewRemoteSource(client schema.ImageServiceClient, retry time.Duration, maxPending int) *RemoteSource {
	if retry <= 0 {
		retry = time.Second
	}
	return &RemoteSource{
		client: client,
		retry:  retry,
		frames: broker.NewBroker[capture.Frame](broker.WithMaxPending(maxPending)),
	}
}

func (r *RemoteSource) Subscribe() (*broker.Subscription[capture.Frame], error) {
	return r.frames.Subscribe(), nil
}

// Run follows the live stream until ctx is done, reconnecting after every
// failure. Subscribers see end of stream when Run returns.
func (r *RemoteSource) Run(ctx context.Context) error {
	defer r.frames.Stop()

	for {
		if err := r.follow(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("live stream interrupted", "err", err, "retry", r.retry)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retry):
		}
	}
}

func (r *RemoteSource) follow(ctx context.Context) error {
	stream, err := r.client.LiveStream(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	slog.Info("following live stream")
	for {
		resp, err := stream.Recv()
		if err != nil {
			return err
		}
		r.seq++
		r.frames.Broadcast(capture.Frame{
			ID:   fmt.Sprintf("remote.%d", r.seq),
			Seq:  r.seq,
			Time: time.Now(),
			Data: resp.GetValue(),
		})
	}
}
