package models

// DailyMetrics is one document per UTC calendar day (key "YYYY-MM-DD").
// Best-effort: created on the first event of the day, incremented afterwards,
// never authoritative.
type DailyMetrics struct {
	Date             string   `bson:"_id"              json:"date"`
	NewSubscriptions int      `bson:"newSubscriptions" json:"newSubscriptions"`
	Unsubscriptions  int      `bson:"unsubscriptions"  json:"unsubscriptions"`
	NetGrowth        int      `bson:"netGrowth"        json:"netGrowth"`
	RateLimited      int      `bson:"rateLimited"      json:"rateLimited"`
	SpamAttempts     int      `bson:"spamAttempts"     json:"spamAttempts"`
	IPHashes         []string `bson:"ipHashes"         json:"-"` // distinct hashed IPs seen
	UniqueIPs        int      `bson:"-"                json:"uniqueIPs"`
}
