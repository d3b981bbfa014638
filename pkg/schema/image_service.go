// Package schema defines the picam.ImageService gRPC service. Messages are
// protobuf well-known types; image metadata travels as request metadata.
package schema

import (
	"context"

	grpc "google.golang.org/grpc"
	emptypb "google.golang.org/protobuf/types/known/emptypb"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "picam.ImageService"

	StoreImageMethod = "/picam.ImageService/StoreImage"
	LiveStreamMethod = "/picam.ImageService/LiveStream"
)

// ImageServiceServer stores JPEG images from cameras and streams them live.
type ImageServiceServer interface {
	// StoreImage takes one JPEG; see ImageMetadata for its id and timestamp.
	StoreImage(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	// LiveStream sends every image stored after the call, in order.
	LiveStream(*emptypb.Empty, ImageService_LiveStreamServer) error
}

type ImageService_LiveStreamServer = grpc.ServerStreamingServer[wrapperspb.BytesValue]

type ImageService_LiveStreamClient = grpc.ServerStreamingClient[wrapperspb.BytesValue]

type UnimplementedImageServiceServer struct{}

func (UnimplementedImageServiceServer) StoreImage(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	return nil, errUnimplemented("StoreImage")
}

func (UnimplementedImageServiceServer) LiveStream(*emptypb.Empty, ImageService_LiveStreamServer) error {
	return errUnimplemented("LiveStream")
}

func RegisterImageServiceServer(s grpc.ServiceRegistrar, srv ImageServiceServer) {
	s.RegisterService(&ImageService_ServiceDesc, srv)
}

func storeImageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ImageServiceServer).StoreImage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StoreImageMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ImageServiceServer).StoreImage(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func liveStreamHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ImageServiceServer).LiveStream(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

var ImageService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ImageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StoreImage",
			Handler:    storeImageHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "LiveStream",
			Handler:       liveStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "picam/image_service",
}

type ImageServiceClient interface {
	StoreImage(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	LiveStream(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (ImageService_LiveStreamClient, error)
}

type imageServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewImageServiceClient(cc grpc.ClientConnInterface) ImageServiceClient {
	return &imageServiceClient{cc}
}

func (c *imageServiceClient) StoreImage(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, StoreImageMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *imageServiceClient) LiveStream(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (ImageService_LiveStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &ImageService_ServiceDesc.Streams[0], LiveStreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
