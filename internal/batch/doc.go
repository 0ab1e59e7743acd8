// Package batch orchestrates one target's acquisition run: discover files in
// the catalogue, download each under a per-file deadline, convert to a
// deviation array, accumulate, and persist the final ResultSet.
//
// Failure policy: per-file problems (timeout, download error, conversion
// error) are absorbed into the skip counter and the run continues — no
// retries, no aborts. Only batch-level conditions (search failure, store
// write failure, cancellation) surface as errors. The invariant
// processed + skipped == total holds at completion.
//
// The download deadline is enforced by running the non-cancellable download
// capability on a detached goroutine (timeout.go); on deadline the runner
// stops waiting and the stray result is discarded.
package batch
