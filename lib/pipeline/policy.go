// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "github.com/bureau-foundation/chronicle/lib/loadwatch"

// AdmissionPolicy decides whether a batch iteration may proceed and
// how far one invocation drains the backlog. The two process roles
// share one loop; only the policy differs.
type AdmissionPolicy interface {
	// Admit is consulted at the top of every batch iteration. A
	// denial stops the whole run gracefully: state is preserved, the
	// lock is released, and the process exits relying on external
	// re-invocation.
	Admit() bool

	// Exhaustive reports whether one invocation drains every pending
	// date. Non-exhaustive runs process at most one date and exit.
	Exhaustive() bool

	// Name labels the policy in logs.
	Name() string
}

// Opportunistic admits work only while the system stays quiet. It
// re-samples CPU load before every batch so a single busy reading
// stops the run, and it processes at most one date per invocation —
// the capture process's launch logic re-invokes it while backlog and
// quiet windows both persist.
type Opportunistic struct {
	Monitor *loadwatch.Monitor
}

func (p Opportunistic) Admit() bool      { return p.Monitor.Admit() }
func (p Opportunistic) Exhaustive() bool { return false }
func (p Opportunistic) Name() string     { return "opportunistic" }

// CatchAll admits unconditionally and drains every pending date. It
// exists so that the backlog cannot grow without bound when the
// opportunistic path never gets a quiet window.
type CatchAll struct{}

func (CatchAll) Admit() bool      { return true }
func (CatchAll) Exhaustive() bool { return true }
func (CatchAll) Name() string     { return "catch-all" }
