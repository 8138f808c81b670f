package utils

import (
	"time"
)

// Token constants
const (
	// AccessTokenTTL is the default time-to-live for staff access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Delivery pipeline constants
const (
	// DefaultSweepBatchSize bounds how many reminders one sweep claims
	DefaultSweepBatchSize = 500

	// DefaultStaleClaimAfter is how long a PROCESSING claim may live before it is released
	DefaultStaleClaimAfter = 15 * time.Minute

	// DefaultSweepLockTTL is the TTL of the distributed sweep lock
	DefaultSweepLockTTL = 5 * time.Minute

	// PreviewSampleSize is the number of audience samples returned by rule preview
	PreviewSampleSize = 3

	// DefaultTimezone is the gym-local timezone used to evaluate rule send hours
	DefaultTimezone = "America/Mexico_City"
)
