package voice

import "strings"

// Directory resolves the phone number to call for a merchant or bank. A
// caller-supplied override always wins; otherwise the merchant table is
// consulted first, then the bank table for dispute calls.
type Directory struct {
	merchants map[string]string
	banks     map[string]string
}

func DefaultDirectory() *Directory {
	return &Directory{
		merchants: map[string]string{
			"netflix":   "+18665797172",
			"spotify":   "+18007827700",
			"hulu":      "+18884653385",
			"audible":   "+18882835051",
			"nytimes":   "+18006984637",
			"planetfit": "+18443244846",
		},
		banks: map[string]string{
			"chase":           "+18009359935",
			"bank of america": "+18004321000",
			"wells fargo":     "+18008693557",
			"capital one":     "+18779383021",
		},
	}
}

// Resolve returns the destination number, or false when none is resolvable.
func (d *Directory) Resolve(override, merchant, bank string) (string, bool) {
	if override != "" {
		return override, true
	}

	if number, ok := d.merchants[normalize(merchant)]; ok {
		return number, true
	}

	if number, ok := d.banks[normalize(bank)]; ok {
		return number, true
	}

	return "", false
}

// WithNumbers overrides or adds merchant numbers from executor configuration.
func (d *Directory) WithNumbers(numbers map[string]any) *Directory {
	merchants := make(map[string]string, len(d.merchants)+len(numbers))
	for merchant, number := range d.merchants {
		merchants[merchant] = number
	}

	for merchant, raw := range numbers {
		if number, ok := raw.(string); ok {
			merchants[normalize(merchant)] = number
		}
	}

	return &Directory{merchants: merchants, banks: d.banks}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
