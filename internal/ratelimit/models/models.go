package models

import (
	"strings"
	"time"
)

// Class is the traffic class a request is limited under. Auth traffic gets a
// tighter ceiling than general API traffic.
type Class string

const (
	ClassAuth Class = "auth"
	ClassAPI  Class = "api"
)

// Limit is a fixed-window ceiling: at most Ceiling requests per Window,
// counted from the first request in the window.
type Limit struct {
	Ceiling int
	Window  time.Duration
}

// Result reports a limiter decision alongside the header values the
// middleware exposes.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Key builds the counter key for a caller within a class. Callers are
// identified by client IP; colons in IPv6 addresses are folded so the key
// stays parseable.
func Key(class Class, callerID string) string {
	safe := strings.ReplaceAll(callerID, ":", "_")
	return string(class) + ":" + safe
}
