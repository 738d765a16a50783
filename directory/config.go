package directory

import "time"

// quicIdleTimeout bounds how long an idle directory connection is kept
// open; unrelated to the per-call timeouts below.
const quicIdleTimeout = 3 * time.Minute

// ConnectTimeout and CallTimeout are the design constants from §5:
// a bounded connect timeout and a bounded total timeout for every
// directory call.
const (
	ConnectTimeout = 5 * time.Second
	CallTimeout    = 10 * time.Second
)
