package geo

import (
	"fmt"
	"net/http"
	"net/url"

	"visitor-relay/internal/geo/domain"
)

const ipapiBaseURL = "https://ipapi.co"

// NewIPAPI returns the primary provider (ipapi.co). Its schema already matches
// GeoInfo except for org, which carries the ISP. client may be nil.
func NewIPAPI(client *http.Client) *HTTPProvider {
	return &HTTPProvider{
		name:    "ipapi.co",
		baseURL: ipapiBaseURL,
		path:    func(ip string) string { return "/" + url.PathEscape(ip) + "/json/" },
		mapFn:   mapIPAPI,
		client:  newHTTPClient(client),
	}
}

// mapIPAPI treats an error flag, a reason (ipapi.co's rate limit and reserved range
// answers) or a missing ip as a decline.
func mapIPAPI(f fields) (domain.GeoInfo, error) {
	if f.truthy("error") || f.truthy("reason") {
		return domain.GeoInfo{}, fmt.Errorf("%w: ipapi.co: %s", ErrDeclined, f.str("reason"))
	}
	if f.str("ip") == "" {
		return domain.GeoInfo{}, fmt.Errorf("%w: ipapi.co: response has no ip", ErrDeclined)
	}
	isp := f.str("org")
	if isp == "" {
		isp = f.str("isp")
	}
	return domain.GeoInfo{
		IP:          f.str("ip"),
		City:        f.str("city"),
		Region:      f.str("region"),
		CountryName: f.str("country_name"),
		CountryCode: f.str("country_code"),
		Timezone:    f.str("timezone"),
		Latitude:    f.coord("latitude"),
		Longitude:   f.coord("longitude"),
		ISP:         isp,
	}, nil
}
