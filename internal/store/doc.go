// Package store persists deviation arrays and batch metadata on disk.
//
// Layout under the configured root, one directory per target:
//
//	<root>/kic_<id>/deviation.txt   — one float per line, "nan" for empty bins
//	<root>/kic_<id>/metadata.json   — the batch metadata record
//
// Save stages both files in a temporary sibling directory and swaps it into
// place, so a ResultSet either exists completely or not at all. The text
// layout is a stable external interface consumed by the presentation layer.
//
// Concurrent writers to the same target id are undefined behaviour; callers
// that care must serialize per id.
package store
