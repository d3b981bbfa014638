package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	insecure "google.golang.org/grpc/credentials/insecure"
	metadata "google.golang.org/grpc/metadata"
	status "google.golang.org/grpc/status"
	proto "google.golang.org/protobuf/proto"
	timestamppb "google.golang.org/protobuf/types/known/timestamppb"
)

const (
	idKey        = "picam-image-id"
	timestampKey = "picam-image-timestamp-bin"
)

var ErrInvalidAddr = errors.New("invalid address, expected network://address")

func errUnimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// WithImageMetadata attaches an image's id and capture time to an outgoing
// StoreImage call.
func WithImageMetadata(ctx context.Context, id string, ts time.Time) (context.Context, error) {
	raw, err := proto.Marshal(timestamppb.New(ts))
	if err != nil {
		return ctx, err
	}
	return metadata.AppendToOutgoingContext(ctx, idKey, id, timestampKey, string(raw)), nil
}

// ImageMetadata reads what WithImageMetadata attached. Missing values are
// returned empty; a missing timestamp is reported as the zero time.
func ImageMetadata(ctx context.Context) (id string, ts time.Time) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", time.Time{}
	}
	if v := md.Get(idKey); len(v) > 0 {
		id = v[0]
	}
	if v := md.Get(timestampKey); len(v) > 0 {
		var pb timestamppb.Timestamp
		if err := proto.Unmarshal([]byte(v[0]), &pb); err == nil && pb.IsValid() {
			ts = pb.AsTime()
		}
	}
	return id, ts
}

// SplitAddr splits "tcp://host:port" or "unix:///path" into network and
// address.
func SplitAddr(addr string) (network, address string, err error) {
	network, address, ok := strings.Cut(addr, "://")
	if !ok || address == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidAddr, addr)
	}
	switch network {
	case "tcp", "unix":
		return network, address, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported network %s", ErrInvalidAddr, network)
	}
}

// Dial opens an insecure client connection to a collector at addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	network, address, err := SplitAddr(addr)
	if err != nil {
		return nil, err
	}
	target := address
	if network == "unix" {
		target = "unix://" + address
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(target, opts...)
}
