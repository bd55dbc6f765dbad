package enricher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneSafari  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	googlebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestEnrich_UserAgent(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	md := e.Enrich(nil, chromeDesktop, "")
	assert.Equal(t, "Chrome", md[KeyBrowser])
	assert.Equal(t, "120.0.0.0", md[KeyBrowserVersion])
	assert.Equal(t, "desktop", md[KeyDeviceType])
	assert.NotEmpty(t, md[KeyOS])

	assert.Equal(t, "mobile", e.Enrich(nil, iphoneSafari, "")[KeyDeviceType])
	assert.Equal(t, "bot", e.Enrich(nil, googlebot, "")[KeyDeviceType])
}

func TestEnrich_KeepsCallerKeys(t *testing.T) {
	e := NewEnricher("")
	in := map[string]any{"browser": "custom", "plan": "pro"}

	out := e.Enrich(in, chromeDesktop, "10.0.0.1")
	assert.Equal(t, "custom", out[KeyBrowser])
	assert.Equal(t, "pro", out["plan"])

	out["plan"] = "free"
	assert.Equal(t, "pro", in["plan"])
	assert.Len(t, in, 2)
}

func TestEnrich_NothingToAdd(t *testing.T) {
	out := NewEnricher("").Enrich(map[string]any{"a": 1}, "", "203.0.113.7")
	require.Len(t, out, 1)
	assert.Equal(t, 1, out["a"])
}

func TestNewEnricher_MissingDatabase(t *testing.T) {
	e := NewEnricher("/nonexistent/GeoLite2-City.mmdb")
	assert.Nil(t, e.geoIP)
	_, ok := e.Enrich(nil, "", "203.0.113.7")[KeyCountry]
	assert.False(t, ok)
}

func TestParseIP(t *testing.T) {
	assert.Equal(t, "203.0.113.7", parseIP("203.0.113.7:51234").String())
	assert.Equal(t, "2001:db8::1", parseIP("[2001:db8::1]:443").String())
	assert.Equal(t, "198.51.100.2", parseIP("198.51.100.2").String())
	assert.Nil(t, parseIP("not-an-ip"))
}
