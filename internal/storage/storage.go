package storage

import (
	"context"
	"errors"
	"time"

	"github.com/roman-kulish/flight-geotag/internal/align"
	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/fusion"
)

// ErrNoData is returned when a query matches nothing
var ErrNoData = errors.New("no data")

// RunInfo describes a stored pipeline run
type RunInfo struct {
	ID         int64        `json:"ID"`               // Unique identifier of the run
	StartTime  time.Time    `json:"startTime"`        // When the run was stored
	Config     *string      `json:"config,omitempty"` // Optional run configuration in JSON format
	Alignment  align.Result `json:"alignment"`        // Clock alignment applied by the run
	Delta      int64        `json:"delta"`            // Absolute applied offset
	NumRecords int          `json:"numRecords"`       // Number of fused records
}

// Store provides an interface for persisting the inputs and outputs of the pipeline.
// All operations that write to the database should be considered atomic.
type Store interface {
	// StoreImages replaces the image timeline of the session.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - images: Image timeline supplied by the capture side
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreImages(ctx context.Context, images *capture.Timeline) error

	// Images returns the image timeline in insertion order. Every image must share the same
	// timestamp unit; mixed units fail with telemetry.ErrTimestampUnitMismatch.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - images: Image timeline
	//   - error: If retrieval fails or context is cancelled
	Images(ctx context.Context) (images *capture.Timeline, err error)

	// StoreRun saves the alignment outcome of a run together with its fused records in a
	// single transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	//   - alignment: Alignment result of the run
	//   - records: Fused records, one per image
	//
	// Returns:
	//   - runID: Unique identifier for the stored run
	//   - error: If storage fails or context is cancelled
	StoreRun(ctx context.Context, config any, alignment align.Result, records []fusion.Record) (runID int64, err error)

	// Run retrieves a stored run by its ID.
	Run(ctx context.Context, id int64) (run *RunInfo, err error)

	// Runs returns all stored runs ordered by ID.
	Runs(ctx context.Context) (runs []*RunInfo, err error)

	// FusedRecords returns the fused records of a run in image order, optionally limited to
	// a timestamp range.
	FusedRecords(ctx context.Context, runID int64, opts ...ReaderOption) (records []fusion.Record, err error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
