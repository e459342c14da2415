package pipeline

import (
	"context"

	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

// LogSource decodes a single flight log into per-channel samples
type LogSource interface {
	// Name identifies the log in messages
	Name() string

	// Decode returns the decoded log. It is called at most once per run and may be called
	// concurrently with Decode of other sources.
	Decode(ctx context.Context) (*telemetry.Log, error)
}

// DecodedLog is a LogSource over an already decoded log
type DecodedLog struct {
	Log *telemetry.Log
}

func (d DecodedLog) Name() string {
	return d.Log.Name
}

func (d DecodedLog) Decode(context.Context) (*telemetry.Log, error) {
	return d.Log, nil
}
