// Package defaults centralizes the tunables that original_source/fletchck
// kept as module-level constants.
package defaults

import "time"

const (
	// CertExpiryDays is how many days out a TLS certificate may expire
	// before a probe that notices it reports failing.
	CertExpiryDays = 7

	// DefaultThreshold is how many consecutive failing ticks a probe
	// needs before it is reported publicly failing.
	DefaultThreshold = 1

	// DefaultRetries is how many inner attempts a single tick makes
	// before it counts as one failing tick.
	DefaultRetries = 1

	// DefaultPriority is the priority of a probe that configures none.
	// Lower priorities run and list first; ties keep insertion order.
	DefaultPriority = 0

	// ProbeTimeout bounds a single network probe attempt.
	ProbeTimeout = 15 * time.Second

	// RemoteStaleAfter is how long a remote probe may go without an
	// update before it is considered stale and reported failing.
	RemoteStaleAfter = 10 * time.Minute

	// LogMaxLines is the cap on a site's or check's retained log ring.
	LogMaxLines = 200

	// LogPruneBlock is how many lines are dropped from the head of a
	// log ring once it exceeds LogMaxLines.
	LogPruneBlock = 10

	// ConfigFileMode is the permission bits used for the persisted
	// site document and generated key material.
	ConfigFileMode = 0o600

	// TimestampFormat is the canonical human-readable timestamp used
	// throughout the status object and logs.
	TimestampFormat = "2006-01-02 15:04:05 MST"
)
