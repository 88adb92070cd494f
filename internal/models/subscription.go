package models

import "time"

// Subscription status values. Unsubscribe is a status flip, never a deletion.
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

// SubscriberMetadata is captured at the most recent subscribe event and
// overwritten on re-subscribe.
type SubscriberMetadata struct {
	IPHash    string `bson:"ipHash"              json:"ipHash"`
	UserAgent string `bson:"userAgent"           json:"userAgent"`
	Country   string `bson:"country,omitempty"   json:"country,omitempty"`
	Referrer  string `bson:"referrer,omitempty"  json:"referrer,omitempty"`
	Locale    string `bson:"locale,omitempty"    json:"locale,omitempty"`
}

// SubscriptionRecord is one document per unique email, keyed by the hash of
// the normalized address.
type SubscriptionRecord struct {
	EmailHash        string             `bson:"_id"                       json:"emailHash"`
	Email            string             `bson:"email"                     json:"email"`
	Status           string             `bson:"status"                    json:"status"`
	SubscribedAt     time.Time          `bson:"subscribedAt"              json:"subscribedAt"`
	LastSubscribedAt time.Time          `bson:"lastSubscribedAt"          json:"lastSubscribedAt"`
	UnsubscribedAt   *time.Time         `bson:"unsubscribedAt,omitempty"  json:"unsubscribedAt,omitempty"`
	UnsubscribeToken string             `bson:"unsubscribeToken"          json:"-"`
	Source           string             `bson:"source"                    json:"source"`
	SubscriptionCount int               `bson:"subscriptionCount"         json:"subscriptionCount"`
	Metadata         SubscriberMetadata `bson:"metadata"                  json:"metadata"`
	Notes            string             `bson:"notes,omitempty"           json:"notes,omitempty"`
	FlaggedAsSpam    bool               `bson:"flaggedAsSpam"             json:"flaggedAsSpam"`
	CreatedAt        time.Time          `bson:"createdAt"                 json:"created"`
	UpdatedAt        time.Time          `bson:"updatedAt"                 json:"modified"`
}
