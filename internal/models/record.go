package models

import "time"

// Record is one served request as captured by the analytics middleware and
// stored in Elasticsearch. ResponseTime is in milliseconds.
type Record struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	HTTPVersion  string    `json:"httpVersion"`
	Method       string    `json:"method"`
	Referrer     string    `json:"referrer,omitempty"`
	IP           string    `json:"ip"`
	ResponseTime float64   `json:"responseTime"`
	Status       int       `json:"status"`
	URL          string    `json:"url"`
	UserAgent    string    `json:"userAgent"`
	Section      string    `json:"section"`
	Curl         bool      `json:"curl"`
}
