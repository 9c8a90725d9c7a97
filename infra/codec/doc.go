// Package codec converts queries and match events between the domain
// types and their external forms: JSON at the transport edge and the
// protobuf wire format inside the WAL and the outbox.
package codec
