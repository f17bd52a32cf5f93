// Package admission decides which target, if any, may receive the next probe.
//
// A target is admissible while its in-flight count is below the per-target
// cap. When no target is admissible Select returns nil and the caller stops
// dispatching for the tick; that is backpressure, not an error.
package admission

import (
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

// Policy selects a target from an ordered snapshot.
type Policy int

const (
	// MaxDeficit picks the target furthest below its cap. Ties go to the
	// earliest target in snapshot order.
	MaxDeficit Policy = iota

	// FirstFit picks the first target below its cap.
	FirstFit
)

// String returns the flag spelling of the policy.
func (p Policy) String() string {
	switch p {
	case MaxDeficit:
		return "max-deficit"
	case FirstFit:
		return "first-fit"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name as accepted on the command line.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "max-deficit", "maxdeficit":
		return MaxDeficit, nil
	case "first-fit", "firstfit":
		return FirstFit, nil
	default:
		return 0, fmt.Errorf("unknown admission policy %q (want max-deficit or first-fit)", s)
	}
}

// Select returns the target that should receive the next probe, or nil when
// every target is at or above limit. A limit below 1 admits nothing.
func (p Policy) Select(targets []*stats.Target, limit int64) *stats.Target {
	if limit < 1 {
		return nil
	}
	if p == FirstFit {
		for _, t := range targets {
			if t.InFlight() < limit {
				return t
			}
		}
		return nil
	}

	var best *stats.Target
	var bestDeficit int64
	for _, t := range targets {
		deficit := limit - t.InFlight()
		if deficit > bestDeficit {
			best = t
			bestDeficit = deficit
		}
	}
	return best
}
