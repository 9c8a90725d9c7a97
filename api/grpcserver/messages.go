package grpcserver

import "fifobook/infra/codec"

type AddRequest struct {
	OrderID  uint64 `json:"order_id"`
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type AddResponse struct {
	Seq     uint64               `json:"seq"`
	Matches []codec.MatchMessage `json:"matches,omitempty"`
}

type CancelRequest struct {
	OrderID uint64 `json:"order_id"`
}

type CancelResponse struct {
	Seq uint64 `json:"seq"`
}

// DepthRequest with an empty Side returns both sides.
type DepthRequest struct {
	Side  string `json:"side,omitempty"`
	Limit int32  `json:"limit,omitempty"`
}

type Level struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

type DepthResponse struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}
