package api

import "strings"

// Entry describes one merchant's cancellation API.
type Entry struct {
	Endpoint    string
	SuccessRate float64
}

// Directory maps merchants to their cancellation API endpoints. The built-in
// table stands in for a real merchant-integration catalog.
type Directory struct {
	entries map[string]Entry
}

func DefaultDirectory() *Directory {
	return &Directory{entries: map[string]Entry{
		"netflix":   {Endpoint: "https://api.netflix.com/v1/memberships/cancel", SuccessRate: 0.9},
		"spotify":   {Endpoint: "https://api.spotify.com/v1/subscriptions/cancel", SuccessRate: 0.85},
		"hulu":      {Endpoint: "https://api.hulu.com/v1/subscriptions/cancel", SuccessRate: 0.8},
		"disney+":   {Endpoint: "https://api.disneyplus.com/v1/subscriptions/cancel", SuccessRate: 0.75},
		"audible":   {Endpoint: "https://api.audible.com/v1/memberships/cancel", SuccessRate: 0.7},
		"nytimes":   {Endpoint: "https://api.nytimes.com/v1/subscriptions/cancel", SuccessRate: 0.6},
		"planetfit": {Endpoint: "https://api.planetfitness.com/v1/memberships/cancel", SuccessRate: 0.3},
	}}
}

// Lookup returns the entry for a merchant, matching case-insensitively.
func (d *Directory) Lookup(merchant string) (Entry, bool) {
	entry, ok := d.entries[strings.ToLower(strings.TrimSpace(merchant))]

	return entry, ok
}

// WithRates overrides or adds success rates from executor configuration.
// A merchant absent from the built-in table gets a synthetic endpoint so tests
// can pin outcomes for arbitrary merchants.
func (d *Directory) WithRates(rates map[string]any) *Directory {
	entries := make(map[string]Entry, len(d.entries)+len(rates))
	for merchant, entry := range d.entries {
		entries[merchant] = entry
	}

	for merchant, raw := range rates {
		rate, ok := raw.(float64)
		if !ok {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(merchant))

		entry, exists := entries[key]
		if !exists {
			entry = Entry{Endpoint: "https://api." + key + ".example/cancel"}
		}

		entry.SuccessRate = rate
		entries[key] = entry
	}

	return &Directory{entries: entries}
}
