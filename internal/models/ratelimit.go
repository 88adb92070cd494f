package models

// RateCounter is one document per rate-limit key (hashed IP, hashed email, or
// the global key). Timestamps are milliseconds since epoch.
//
// The window is a fixed reset, not a sliding one: once WindowStart is older
// than the window length the next attempt restarts the counter at 1.
type RateCounter struct {
	Count         int    `bson:"count"                  json:"count"`
	WindowStart   int64  `bson:"windowStart"            json:"windowStart"`
	LastAttempt   int64  `bson:"lastAttempt"            json:"lastAttempt"`
	BlockedUntil  *int64 `bson:"blockedUntil,omitempty" json:"blockedUntil,omitempty"`
	TotalAttempts int64  `bson:"totalAttempts"          json:"totalAttempts"` // lifetime, never reset
}
