// Package snapshot persists the resting orders of a book together with
// the query sequence they reflect, so recovery only replays the WAL tail.
package snapshot
