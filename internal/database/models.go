package database

import "time"

// Token is a rechargeable promo credential. It is usable while Expires is in
// the future and Credits is positive; each use costs one credit.
type Token struct {
	ID      string    `json:"id"`
	Token   string    `json:"token"`
	Legend  string    `json:"legend,omitempty"`
	Credits int       `json:"credits"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Expires time.Time `json:"expires"`
}

// Usable reports whether the token may authorize a lookup at the given time
func (t *Token) Usable(now time.Time) bool {
	return t != nil && now.Before(t.Expires) && t.Credits > 0
}

// Payment is a completed provider transaction tied to one vehicle lookup.
// Used is set exactly once, by the first successful authorization.
type Payment struct {
	ID            string     `json:"id"`
	Date          time.Time  `json:"date"`
	TransactionID string     `json:"transactionId"`
	Reference     string     `json:"reference"`
	Href          string     `json:"href"`
	RegNumber     string     `json:"regNumber"`
	VIN           string     `json:"vin"`
	RegType       string     `json:"regType"`
	Used          *time.Time `json:"used"`
}

// LogEntry is an immutable audit record, one per request attempt
type LogEntry struct {
	Date       time.Time `json:"date"`
	Status     string    `json:"status"`
	Note       string    `json:"note"`
	QueryType  string    `json:"queryType"`
	RegType    string    `json:"regType,omitempty"`
	IP         string    `json:"ip"`
	Duration   float64   `json:"duration"` // milliseconds
	Route      string    `json:"rte"`
	Version    string    `json:"version"`
	PromoToken string    `json:"promoToken,omitempty"`
}
