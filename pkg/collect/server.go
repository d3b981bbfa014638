package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/google/uuid"
	broker "github.com/mpoegel/picam/pkg/broker"
	capture "github.com/mpoegel/picam/pkg/capture"
	frame "github.com/mpoegel/picam/pkg/frame"
	schema "github.com/mpoegel/picam/pkg/schema"
	snapshot "github.com/mpoegel/picam/pkg/snapshot"
	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	emptypb "google.golang.org/protobuf/types/known/emptypb"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

// ImageServer stores images sent by cameras and relays them to live viewers.
type ImageServer struct {
	schema.UnimplementedImageServiceServer

	opt   Options
	saver snapshot.Saver

	network string
	addr    string

	mu         sync.Mutex
	stopped    bool
	grpcServer *grpc.Server
	liveBroker *broker.Broker[capture.Frame]
	seq        atomic.Uint64
}

func NewImageServer(opt Options) (*ImageServer, error) {
	network, addr, err := schema.SplitAddr(opt.Addr)
	if err != nil {
		return nil, err
	}
	return &ImageServer{
		opt:        opt,
		saver:      &snapshot.FileSaver{Dir: opt.ImgDir},
		network:    network,
		addr:       addr,
		liveBroker: broker.NewBroker[capture.Frame](broker.WithMaxPending(opt.MaxPending)),
	}, nil
}

// WithSaver replaces where stored images are written.
func (s *ImageServer) WithSaver(saver snapshot.Saver) *ImageServer {
	s.saver = saver
	return s
}

func (s *ImageServer) Start(ctx context.Context) error {
	lnConfig := net.ListenConfig{}

	ln, err := lnConfig.Listen(ctx, s.network, s.addr)
	if err != nil {
		return err
	}
	slog.Info("listening", "addr", s.opt.Addr)
	return s.Serve(ln)
}

// Serve handles gRPC requests on ln until Stop is called.
func (s *ImageServer) Serve(ln net.Listener) error {
	grpcServer := grpc.NewServer()
	schema.RegisterImageServiceServer(grpcServer, s)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.grpcServer = grpcServer
	s.mu.Unlock()

	if err := grpcServer.Serve(ln); !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop ends every live stream and closes the listener.
func (s *ImageServer) Stop() {
	s.liveBroker.Stop()

	s.mu.Lock()
	s.stopped = true
	grpcServer := s.grpcServer
	s.mu.Unlock()
	if grpcServer != nil {
		grpcServer.Stop()
	}
	s.saver.Close()
}

func (s *ImageServer) StoreImage(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	id, ts := schema.ImageMetadata(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	slog.Info("got store image request", "req.id", id, "timestamp", ts, "bytes", len(req.GetValue()))

	data := req.GetValue()
	if frame.FindFirst(data, frame.SOI, 0) != 0 {
		return nil, status.Error(codes.InvalidArgument, "image is not a JPEG")
	}

	f := capture.Frame{
		ID:   id,
		Seq:  s.seq.Add(1),
		Time: ts,
		Data: data,
	}
	if err := s.saver.Save(f); err != nil {
		slog.Warn("could not save image", "id", id, "err", err)
		return nil, status.Error(codes.Internal, fmt.Sprintf("could not save image: %v", err))
	}

	s.liveBroker.Broadcast(f)
	slog.Info("image broadcasted", "id", id, "url", s.imageURL(ts))

	return &emptypb.Empty{}, nil
}

func (s *ImageServer) imageURL(ts time.Time) string {
	return fmt.Sprintf("%s/%s", s.opt.ProxyAddr, snapshot.Filename(ts))
}

func (s *ImageServer) LiveStream(req *emptypb.Empty, stream schema.ImageService_LiveStreamServer) error {
	sub := s.liveBroker.Subscribe()
	defer s.liveBroker.Unsubscribe(sub)

	for {
		select {
		case f, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := stream.Send(wrapperspb.Bytes(f.Data)); err != nil {
				return err
			}
			slog.Debug("live stream updated", "id", f.ID)
		case <-stream.Context().Done():
			return nil
		}
	}
}

// Viewers returns the number of open live streams.
func (s *ImageServer) Viewers() int {
	return s.liveBroker.Subscribers()
}
