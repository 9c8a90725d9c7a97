package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "fifobook.v1.OrderBook"

// OrderBookServer is the server API of fifobook.v1.OrderBook.
type OrderBookServer interface {
	Add(context.Context, *AddRequest) (*AddResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	Depth(context.Context, *DepthRequest) (*DepthResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderBookServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Add", Handler: unary("Add", func(s OrderBookServer, ctx context.Context, in *AddRequest) (any, error) {
			return s.Add(ctx, in)
		})},
		{MethodName: "Cancel", Handler: unary("Cancel", func(s OrderBookServer, ctx context.Context, in *CancelRequest) (any, error) {
			return s.Cancel(ctx, in)
		})},
		{MethodName: "Depth", Handler: unary("Depth", func(s OrderBookServer, ctx context.Context, in *DepthRequest) (any, error) {
			return s.Depth(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fifobook/v1/orderbook.proto",
}

func RegisterOrderBookServer(s grpc.ServiceRegistrar, srv OrderBookServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req any](
	method string,
	call func(OrderBookServer, context.Context, *Req) (any, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderBookServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderBookServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// -------------------- Client --------------------

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Add(ctx context.Context, in *AddRequest, opts ...grpc.CallOption) (*AddResponse, error) {
	out := new(AddResponse)
	if err := c.invoke(ctx, "Add", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.invoke(ctx, "Cancel", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Depth(ctx context.Context, in *DepthRequest, opts ...grpc.CallOption) (*DepthResponse, error) {
	out := new(DepthResponse)
	if err := c.invoke(ctx, "Depth", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(JSONCodec{})}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
