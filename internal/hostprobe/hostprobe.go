// Package hostprobe defines the host-probe collaborator that samples
// CPU / memory / bandwidth usage of the local machine (spec.md §1).
// The core never samples hardware itself; the local reporter calls
// this interface once per sampling tick.
package hostprobe

import (
	"context"

	"fleetload/internal/loadmodel"
)

// Probe samples the local host's current resource usage.
type Probe interface {
	Sample(ctx context.Context) (loadmodel.SystemResourceUsage, error)
}

// Fake returns a fixed usage sample, or Err if set. Used by reporter
// tests that need a deterministic, zero-hardware-dependency sample.
type Fake struct {
	Usage loadmodel.SystemResourceUsage
	Err   error
}

func (f *Fake) Sample(context.Context) (loadmodel.SystemResourceUsage, error) {
	if f.Err != nil {
		return loadmodel.SystemResourceUsage{}, f.Err
	}
	return f.Usage, nil
}
