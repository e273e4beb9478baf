package geo

import (
	"fmt"
	"net/http"
	"net/url"

	"visitor-relay/internal/geo/domain"
)

const ipAPIComBaseURL = "http://ip-api.com"

// NewIPAPICom returns the secondary provider (ip-api.com). client may be nil.
func NewIPAPICom(client *http.Client) *HTTPProvider {
	return &HTTPProvider{
		name:    "ip-api.com",
		baseURL: ipAPIComBaseURL,
		path:    func(ip string) string { return "/json/" + url.PathEscape(ip) },
		mapFn:   mapIPAPICom,
		client:  newHTTPClient(client),
	}
}

// mapIPAPICom renames ip-api.com fields onto GeoInfo. Values are not converted or
// validated; a field with an unexpected type is left empty and later becomes Unknown.
func mapIPAPICom(f fields) (domain.GeoInfo, error) {
	if status := f.str("status"); status != "success" {
		return domain.GeoInfo{}, fmt.Errorf("%w: ip-api.com: status %q: %s", ErrDeclined, status, f.str("message"))
	}
	return domain.GeoInfo{
		IP:          f.str("query"),
		City:        f.str("city"),
		Region:      f.str("regionName"),
		CountryName: f.str("country"),
		CountryCode: f.str("countryCode"),
		Timezone:    f.str("timezone"),
		Latitude:    f.coord("lat"),
		Longitude:   f.coord("lon"),
		ISP:         f.str("isp"),
	}, nil
}
