// Package transport ships drained log event batches to the remote
// collector and classifies send failures into the retry/discard
// taxonomy the harvester acts on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/canopymon/canopy/internal/event"
)

// Outcome classifies the result of one collector send.
type Outcome int

const (
	Success Outcome = iota
	// RetryableFailure means the batch is worth merging back into the
	// live reservoir and re-attempting next harvest.
	RetryableFailure
	// PermanentFailure means the collector rejected the payload or the
	// error is unclassified; the batch must be discarded so a bad batch
	// cannot grow memory through endless retries.
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable"
	default:
		return "permanent"
	}
}

// Sender ships one drained batch. capacity is the reservoir limit in
// effect and seen the total offered count, so the collector can account
// for sampling loss. The wire encoding is the sender's concern.
type Sender interface {
	SendLogEvents(ctx context.Context, appName string, capacity int, seen int64, events []*event.Event) error
}

// HTTPError is a non-2xx collector response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("collector responded %d", e.StatusCode)
}

// retryableStatus is the collector status policy: request timeout,
// throttling and transient server errors keep the batch; everything
// else discards it.
var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	503: true,
}

// Retryable reports whether the batch behind this error is worth
// keeping for the next harvest.
func (e *HTTPError) Retryable() bool {
	return retryableStatus[e.StatusCode]
}

// Classify maps a send error to the outcome the harvester acts on.
// Network-level failures and timeouts are transient; everything
// unrecognized is treated as permanent.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Retryable() {
			return RetryableFailure
		}
		return PermanentFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return RetryableFailure
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RetryableFailure
	}
	return PermanentFailure
}
