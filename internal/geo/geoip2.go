package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"visitor-relay/internal/geo/domain"
)

// GeoIP2Provider resolves IPs offline from a MaxMind City database.
type GeoIP2Provider struct {
	reader *geoip2.Reader
}

// NewGeoIP2 opens the City .mmdb at path. Call Close when shutting down.
func NewGeoIP2(path string) (*GeoIP2Provider, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", path, err)
	}
	return &GeoIP2Provider{reader: r}, nil
}

// Name implements Provider.
func (p *GeoIP2Provider) Name() string {
	return "geoip2"
}

// Lookup implements Provider. Unparseable IPs and addresses the database has no
// location for (private ranges, loopback) are declines.
func (p *GeoIP2Provider) Lookup(_ context.Context, ip string) (domain.GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return domain.GeoInfo{}, fmt.Errorf("%w: geoip2: %q is not an IP address", ErrDeclined, ip)
	}
	if p == nil || p.reader == nil {
		return domain.GeoInfo{}, fmt.Errorf("geo: geoip2: database not open")
	}
	rec, err := p.reader.City(parsed)
	if err != nil {
		return domain.GeoInfo{}, fmt.Errorf("geo: geoip2: %w", err)
	}
	if rec.Country.IsoCode == "" && rec.City.Names["en"] == "" {
		return domain.GeoInfo{}, fmt.Errorf("%w: geoip2: no record for %s", ErrDeclined, ip)
	}
	info := domain.GeoInfo{
		IP:          ip,
		City:        rec.City.Names["en"],
		CountryName: rec.Country.Names["en"],
		CountryCode: rec.Country.IsoCode,
		Timezone:    rec.Location.TimeZone,
	}
	if len(rec.Subdivisions) > 0 {
		info.Region = rec.Subdivisions[0].Names["en"]
	}
	if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
		info.Latitude = domain.Coord(rec.Location.Latitude)
		info.Longitude = domain.Coord(rec.Location.Longitude)
	}
	return info, nil
}

// Close releases the database.
func (p *GeoIP2Provider) Close() error {
	if p == nil || p.reader == nil {
		return nil
	}
	return p.reader.Close()
}
