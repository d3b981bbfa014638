package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	capture "github.com/mpoegel/picam/pkg/capture"
	schema "github.com/mpoegel/picam/pkg/schema"
	gocv "gocv.io/x/gocv"
	grpc "google.golang.org/grpc"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	TimeFormat = "2006-01-02T15:04:05.000"
	Extension  = ".jpg"
)

var ErrInvalidDestination = errors.New("invalid destination")

// Saver persists captured frames.
type Saver interface {
	Save(f capture.Frame) error
	Close()
}

// Filename names a snapshot after its capture time, in local time, so
// snapshots sort in capture order.
func Filename(ts time.Time) string {
	return ts.Local().Format(TimeFormat) + Extension
}

// NewSaver parses destination as file://dir, tcp://host:port or
// unix:///path.
func NewSaver(ctx context.Context, destination string) (Saver, error) {
	saveType, saveDest, ok := strings.Cut(destination, "://")
	if !ok || saveDest == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, destination)
	}

	switch saveType {
	case "file":
		return &FileSaver{Dir: saveDest}, nil
	case "tcp", "unix":
		return &RemoteSaver{Addr: destination, Ctx: ctx}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %s", ErrInvalidDestination, saveType)
	}
}

// FileSaver writes each frame into Dir as a JPEG. Frames are decoded first so
// that corrupt captures are rejected; with Width and Height set they are
// resized before being encoded again.
type FileSaver struct {
	Dir    string
	Width  int
	Height int
}

func (s *FileSaver) Save(f capture.Frame) error {
	ts := f.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	filename := filepath.Join(s.Dir, Filename(ts))

	if s.Width <= 0 || s.Height <= 0 {
		if err := Validate(f.Data); err != nil {
			return err
		}
		return writeFile(filename, f.Data)
	}

	img, err := gocv.IMDecode(f.Data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode frame %s: %w", f.ID, err)
	}
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("decode frame %s: empty image", f.ID)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(s.Width, s.Height), 0, 0, gocv.InterpolationArea)

	if ok := gocv.IMWrite(filename, resized); !ok {
		return errors.New("could not save image")
	}
	slog.Debug("image saved", "file", filename, "id", f.ID)
	return nil
}

func (s *FileSaver) Close() {}

func writeFile(filename string, data []byte) error {
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("could not save image: %w", err)
	}
	slog.Debug("image saved", "file", filename)
	return nil
}

// Validate reports whether data decodes as an image.
func Validate(data []byte) error {
	img, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return err
	}
	defer img.Close()
	if img.Empty() {
		return errors.New("not a decodable image")
	}
	return nil
}

// RemoteSaver sends each frame to a collector's StoreImage.
type RemoteSaver struct {
	Addr    string
	Ctx     context.Context
	Timeout time.Duration

	conn   *grpc.ClientConn
	client schema.ImageServiceClient
}

// NewRemoteSaver returns a saver that uses an existing client.
func NewRemoteSaver(ctx context.Context, client schema.ImageServiceClient) *RemoteSaver {
	return &RemoteSaver{Ctx: ctx, client: client}
}

func (s *RemoteSaver) Save(f capture.Frame) error {
	if s.client == nil {
		if err := s.connect(); err != nil {
			return err
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	parent := s.Ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, err := schema.WithImageMetadata(ctx, f.ID, f.Time)
	if err != nil {
		return err
	}
	if _, err := s.client.StoreImage(ctx, wrapperspb.Bytes(f.Data)); err != nil {
		return fmt.Errorf("store image %s: %w", f.ID, err)
	}

	slog.Debug("image stored", "id", f.ID, "addr", s.Addr)
	return nil
}

func (s *RemoteSaver) connect() error {
	conn, err := schema.Dial(s.Addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = schema.NewImageServiceClient(conn)
	return nil
}

func (s *RemoteSaver) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
