package enricher

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

// Metadata keys added by Enrich
const (
	KeyBrowser        = "browser"
	KeyBrowserVersion = "browser_version"
	KeyOS             = "os"
	KeyDeviceType     = "device_type"
	KeyCountry        = "country"
	KeyCity           = "city"
)

type Enricher struct {
	geoIP *geoip2.Reader
}

// NewEnricher loads the GeoIP database at geoIPPath when one is given. A
// database that cannot be opened disables geo lookups.
func NewEnricher(geoIPPath string) *Enricher {
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		db, err := geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable, skipping geo enrichment")
		} else {
			geoIP = db
		}
	}

	return &Enricher{
		geoIP: geoIP,
	}
}

// Enrich returns a copy of metadata with client details derived from the
// user agent and IP. Keys the caller already set are left alone.
func (e *Enricher) Enrich(metadata map[string]any, userAgentString, clientIP string) map[string]any {
	out := make(map[string]any, len(metadata)+6)
	for k, v := range metadata {
		out[k] = v
	}

	// Parse user agent
	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		name, version := ua.Browser()
		setIfEmpty(out, KeyBrowser, name)
		setIfEmpty(out, KeyBrowserVersion, version)
		setIfEmpty(out, KeyOS, ua.OS())
		setIfEmpty(out, KeyDeviceType, deviceType(ua))
	}

	// GeoIP lookup
	if e.geoIP != nil && clientIP != "" {
		if ip := parseIP(clientIP); ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				setIfEmpty(out, KeyCountry, record.Country.IsoCode)
				setIfEmpty(out, KeyCity, record.City.Names["en"])
			}
		}
	}

	return out
}

func deviceType(ua *useragent.UserAgent) string {
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}

func setIfEmpty(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := m[key]; ok {
		return
	}
	m[key] = value
}

// parseIP accepts a bare address or host:port
func parseIP(s string) net.IP {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return net.ParseIP(s)
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
