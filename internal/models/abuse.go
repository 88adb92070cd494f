package models

import "time"

// Abuse event types written by the subscribe pipeline.
const (
	AbuseSpamDetected      = "spam-detected"
	AbuseRateLimit         = "rate-limit"
	AbuseInvalidEmail      = "invalid-email"
	AbuseHoneypotFilled    = "honeypot-filled"
	AbuseDisposableEmail   = "disposable-email"
	AbuseSuspiciousPattern = "suspicious-pattern"
	AbuseMaliciousContent  = "malicious-content"
)

// Abuse event severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AbuseDetails identifies the request that triggered an event. Email and IP
// appear only as hashes.
type AbuseDetails struct {
	EmailHash string `bson:"emailHash,omitempty" json:"emailHash,omitempty"`
	IPHash    string `bson:"ipHash,omitempty"    json:"ipHash,omitempty"`
	UserAgent string `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	Reason    string `bson:"reason,omitempty"    json:"reason,omitempty"`
	Extra     string `bson:"extra,omitempty"     json:"extra,omitempty"`
}

// AbuseEvent is an append-only log entry. Resolution fields are for operators
// and are never set by the pipeline.
type AbuseEvent struct {
	ID         string       `bson:"_id"                  json:"id"`
	Timestamp  time.Time    `bson:"timestamp"            json:"timestamp"`
	Type       string       `bson:"type"                 json:"type"`
	Severity   string       `bson:"severity"             json:"severity"`
	Details    AbuseDetails `bson:"details"              json:"details"`
	Resolved   bool         `bson:"resolved"             json:"resolved"`
	ResolvedAt *time.Time   `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ResolvedBy string       `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
}
