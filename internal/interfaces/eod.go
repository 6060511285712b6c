package interfaces

import (
	"context"
	"time"
)

// EodSummarizer writes the per-asset day summary of the trade journal.
// An empty path with a nil error means there was nothing to summarize.
type EodSummarizer interface {
	SummarizeDay(ctx context.Context, t time.Time) (csvPath string, err error)
	SummarizeToday(ctx context.Context) (csvPath string, err error)
	ShouldRunNow() (shouldRun bool, csvPath string)
}
