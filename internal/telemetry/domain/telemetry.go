package domain

import (
	"time"

	geodomain "visitor-relay/internal/geo/domain"
)

// DirectVisitorID is the UserId attached to visits detected from a bare URL hit.
const DirectVisitorID = "DIRECT_URL_VISITOR"

// TimestampLayout is ISO-8601 UTC with millisecond precision, e.g. 2024-05-01T12:00:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the visit record sent to the collector. Built once per visit and not modified afterwards.
type Payload struct {
	UserID    string            `json:"UserId"`
	IPInfo    geodomain.GeoInfo `json:"ipInfo"`
	Timestamp string            `json:"timestamp"`
	Source    string            `json:"source"`
}

// NewVisit builds the payload for a direct URL visit. source names the hosting variant.
func NewVisit(info geodomain.GeoInfo, source string, at time.Time) *Payload {
	return &Payload{
		UserID:    DirectVisitorID,
		IPInfo:    info,
		Timestamp: at.UTC().Format(TimestampLayout),
		Source:    source,
	}
}
