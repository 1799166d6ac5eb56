package httpapi

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/subgeo/subgeo/internal/pipeline"
	"github.com/subgeo/subgeo/internal/provision"
)

// Options wires the HTTP layer to the processing pipeline.
//
// Keep it small: this service is a test-and-relabel pipeline, not a framework.
type Options struct {
	// Pipeline runs the fetch/probe batch for /api/process.
	Pipeline *pipeline.Pipeline

	// Provider answers core availability for /healthz.
	Provider provision.Provider

	// ProcessTimeout is the hard upper bound for a single batch request
	// (fetch + parse + probe every node + render).
	ProcessTimeout time.Duration

	Log *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.ProcessTimeout <= 0 {
		o.ProcessTimeout = 5 * time.Minute
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return o
}
