package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Unknown is the sentinel used for every field a provider did not supply.
const Unknown = "Unknown"

// PlaceholderSource marks a record synthesized from the request IP because no provider answered.
const PlaceholderSource = "header"

// GeoInfo is the normalized geolocation record. Once Complete has been applied every
// field holds a value, so serialized records never miss a key.
type GeoInfo struct {
	IP          string     `json:"ip"`
	City        string     `json:"city"`
	Region      string     `json:"region"`
	CountryName string     `json:"country_name"`
	CountryCode string     `json:"country_code"`
	Timezone    string     `json:"timezone"`
	Latitude    Coordinate `json:"latitude"`
	Longitude   Coordinate `json:"longitude"`
	ISP         string     `json:"isp"`
	Error       bool       `json:"error"`
	Source      string     `json:"source"`
}

// Complete returns a copy with empty fields replaced: IP by fallbackIP, strings by Unknown.
func (g GeoInfo) Complete(fallbackIP string) GeoInfo {
	if g.IP == "" {
		g.IP = fallbackIP
	}
	for _, f := range []*string{&g.IP, &g.City, &g.Region, &g.CountryName, &g.CountryCode, &g.Timezone, &g.ISP, &g.Source} {
		if *f == "" {
			*f = Unknown
		}
	}
	return g
}

// Placeholder is the degraded record used when every provider failed.
// errored is true when the failure involved a transport or decode error rather than clean declines.
func Placeholder(ip string, errored bool) GeoInfo {
	return GeoInfo{
		IP:     ip,
		Error:  errored,
		Source: PlaceholderSource,
	}.Complete(ip)
}

// Location renders "city, country" for log lines.
func (g GeoInfo) Location() string {
	return g.City + ", " + g.CountryName
}

// Coordinate is a latitude or longitude that serializes as a JSON number when known
// and as the Unknown sentinel otherwise.
type Coordinate struct {
	Value float64
	Valid bool
}

// Coord returns a known coordinate.
func Coord(v float64) Coordinate {
	return Coordinate{Value: v, Valid: true}
}

// MarshalJSON implements json.Marshaler.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return json.Marshal(Unknown)
	}
	return []byte(strconv.FormatFloat(c.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number; anything else leaves the coordinate unknown.
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	*c = Coordinate{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '"' || bytes.Equal(b, []byte("null")) {
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	*c = Coord(v)
	return nil
}
