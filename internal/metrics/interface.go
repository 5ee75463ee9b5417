package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/mfcctl/internal/mfc"
)

// Collector archives recorded sample batches.
type Collector interface {
	Record(ctx context.Context, at time.Time, batch []*mfc.Sample) error
	Close() error
}

// Repository is the storage backend behind a Collector.
type Repository interface {
	Record(at time.Time, batch []*mfc.Sample) error
	Close() error
}

// sampleRow is one flattened per-controller row ready for insertion.
type sampleRow struct {
	timestamp   float64
	controller  int
	flow        float64
	pressure    float64
	temperature float64
	setpoint    float64
}
