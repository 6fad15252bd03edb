// Package tracer defines the boundary to the centerline-extraction
// collaborator and ships a reference implementation so the pipeline runs
// end to end without an external binary.
package tracer

import (
	"context"
	"errors"

	"neurotrace/internal/models"
)

// ErrTraceFailed marks opaque tracer failures surfaced to the pipeline.
// Tracing is expensive and deterministic for a given input, so the
// pipeline never retries on this error.
var ErrTraceFailed = errors.New("tracer failure")

// Options are the recognized tracer flags. They replace the loose global
// flags of older tracing tools with one explicit structure.
type Options struct {
	// Quality enables the slower, more accurate radius estimation
	Quality bool

	// Speed trades radius accuracy for throughput; ignored when Quality is set
	Speed bool

	// NonStop makes degenerate input (no foreground above threshold)
	// return an empty tree instead of an error
	NonStop bool

	// Silent suppresses progress output
	Silent bool
}

// Result is a traced skeleton in the working-volume frame, plus the soma
// mask when detection succeeded.
type Result struct {
	Tree *models.Skeleton
	Soma models.Soma
}

// Tracer consumes a working volume and a threshold and produces a raw
// skeleton. Implementations must not mutate the input volume and must
// return a tree satisfying the skeleton invariants even on degenerate
// input. The context is the pipeline's cancellation point: long traces
// should return ctx.Err() promptly once the context is done.
type Tracer interface {
	Trace(ctx context.Context, vol *models.Volume, threshold float64, opts Options) (*Result, error)
}
