package subscription

// SubscribeDTO is the subscribe request body. Honeypot is rendered invisibly
// by the landing page, so a human never fills it.
type SubscribeDTO struct {
	Email     string `json:"email"     binding:"required"`
	Honeypot  string `json:"honeypot"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"` // ms epoch of form load
}

// UnsubscribeDTO is the unsubscribe request body.
type UnsubscribeDTO struct {
	Token string `json:"token" binding:"required"`
}

// BlockDTO is the operator manual-block request.
type BlockDTO struct {
	Scope           string `json:"scope"           binding:"required"`
	Key             string `json:"key"             binding:"required"`
	DurationMinutes int    `json:"durationMinutes" binding:"required,min=1"`
}

// subscribedData is the success payload of a subscribe response.
type subscribedData struct {
	Status       string `json:"status"`
	SubscribedAt string `json:"subscribedAt"`
}

// unsubscribedData is the success payload of an unsubscribe response.
type unsubscribedData struct {
	Email          string `json:"email"` // masked
	UnsubscribedAt string `json:"unsubscribedAt"`
}
