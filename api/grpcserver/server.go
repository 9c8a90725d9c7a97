package grpcserver

import (
	"context"
	"errors"
	"time"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
	"fifobook/pkg/logger"
	"fifobook/service"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server adapts OrderService to gRPC.
type Server struct {
	svc        *service.OrderService
	depthLimit int
}

func NewServer(svc *service.OrderService, depthLimit int) *Server {
	return &Server{svc: svc, depthLimit: depthLimit}
}

// NewGRPCServer builds a grpc.Server that speaks the JSON codec, logs
// every call and serves srv.
func NewGRPCServer(srv OrderBookServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(JSONCodec{}),
		grpc.ChainUnaryInterceptor(logUnary),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterOrderBookServer(s, srv)
	return s
}

// -------------------- Commands --------------------

func (s *Server) Add(ctx context.Context, req *AddRequest) (*AddResponse, error) {
	side, err := codec.ParseSide(req.Side)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.svc.Add(ctx, orderbook.Add{
		ID:    orderbook.OrderID(req.OrderID),
		Side:  side,
		Price: req.Price,
		Qty:   req.Quantity,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &AddResponse{
		Seq:     res.Seq,
		Matches: codec.MatchMessages(res.Matches),
	}, nil
}

func (s *Server) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	res, err := s.svc.Cancel(ctx, orderbook.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelResponse{Seq: res.Seq}, nil
}

// -------------------- Queries --------------------

func (s *Server) Depth(ctx context.Context, req *DepthRequest) (*DepthResponse, error) {
	limit := int(req.Limit)
	if limit <= 0 || (s.depthLimit > 0 && limit > s.depthLimit) {
		limit = s.depthLimit
	}

	resp := &DepthResponse{Bids: []Level{}, Asks: []Level{}}
	if req.Side == "" {
		resp.Bids = levels(s.svc.Depth(orderbook.Buy, limit))
		resp.Asks = levels(s.svc.Depth(orderbook.Sell, limit))
		return resp, nil
	}

	side, err := codec.ParseSide(req.Side)
	if err != nil {
		return nil, toStatus(err)
	}
	if side == orderbook.Buy {
		resp.Bids = levels(s.svc.Depth(side, limit))
	} else {
		resp.Asks = levels(s.svc.Depth(side, limit))
	}
	return resp, nil
}

// -------------------- Converters --------------------

func levels(in []orderbook.DepthLevel) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{Price: l.Price, Quantity: l.Qty, Orders: l.Orders}
	}
	return out
}

func toStatus(err error) error {
	var iv *orderbook.InvariantViolation
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, orderbook.ErrBookHalted), errors.As(err, &iv):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, orderbook.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, orderbook.ErrDuplicateOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, orderbook.ErrInvalidQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := logger.Component("grpc").WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start),
	})
	if status.Code(err) == codes.Internal || status.Code(err) == codes.FailedPrecondition {
		entry.WithError(err).Error("call failed")
	} else {
		entry.Debug("call")
	}
	return resp, err
}
