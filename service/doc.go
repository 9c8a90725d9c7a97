// Package service is the single write entry point of the engine. It
// sequences queries, logs them to the entry WAL, applies them to the
// order book and hands resulting matches to the outbox.
//
// It provides the API used by the gRPC, HTTP and Kafka transports and
// is decoupled from all of them.
package service
