// Package requestlog captures the requests served by the mock server so
// users can inspect what came in, which endpoint matched and what was sent
// back. It is distinct from operational logging, which uses log/slog.
//
// MemoryStore keeps the most recent entries in a fixed-size ring; when it
// is full the oldest entry is evicted.
package requestlog
