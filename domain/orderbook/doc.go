// Package orderbook implements the in-memory limit order book and its
// matching engine. It keeps one red-black tree of price levels per side,
// an arena-backed FIFO queue per level, and an order index that maps an
// order id to its queue slot for constant time cancellation.
//
// The book is single-writer and deterministic: every Add or Cancel runs
// to completion, including any crossing resolution, before the next call.
// It performs no I/O. Matches are returned to the caller and optionally
// pushed to an Observer.
package orderbook
