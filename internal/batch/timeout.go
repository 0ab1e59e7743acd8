package batch

import (
	"fmt"
	"time"

	"github.com/dipscan/dipscan/internal/archive"
)

// downloadWithTimeout runs the blocking download capability on its own
// goroutine and waits at most timeout for it to finish.
//
// The capability is not cancellable: when the deadline elapses the attempt is
// reported as timed out and the goroutine is detached — the batch moves on
// without joining it. The result channel is buffered so the stray goroutine
// can still deliver (and have discarded) its eventual result instead of
// leaking. A stray partial file is swept together with the run's scratch
// directory.
func downloadWithTimeout(dl Downloader, h archive.FileHandle, dir string, timeout time.Duration) outcome {
	type downloadResult struct {
		path string
		err  error
	}

	done := make(chan downloadResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- downloadResult{err: fmt.Errorf("download panicked: %v", r)}
			}
		}()
		path, err := dl.Download(h, dir)
		done <- downloadResult{path: path, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return outcome{kind: outcomeFailed, err: res.err}
		}
		return outcome{kind: outcomeOK, path: res.path}

	case <-timer.C:
		return outcome{kind: outcomeTimedOut}
	}
}
