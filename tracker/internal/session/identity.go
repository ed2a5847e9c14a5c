package session

import "math/rand"

// Identity is one randomized browser fingerprint: user agent, language and
// timezone travel together so the signature is coherent.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
	Timezone       string
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

var locales = []struct {
	acceptLanguage string
	timezone       string
}{
	{"en-GB,en;q=0.9", "Europe/London"},
	{"en-GB,en-US;q=0.9,en;q=0.8", "Europe/London"},
	{"en-US,en;q=0.9", "Europe/Dublin"},
}

// RandomIdentity draws a fresh identity from the pools.
func RandomIdentity(rnd *rand.Rand) Identity {
	loc := locales[rnd.Intn(len(locales))]
	return Identity{
		UserAgent:      userAgents[rnd.Intn(len(userAgents))],
		AcceptLanguage: loc.acceptLanguage,
		Timezone:       loc.timezone,
	}
}
