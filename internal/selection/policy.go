// Package selection decides which provider handles the next send.
package selection

import (
	"strings"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

// SelectProvider picks a provider from providers, which must be in
// configuration order. A preferred provider wins when it is enabled and has
// headroom. Otherwise the cheapest enabled provider with headroom is chosen,
// earliest in configuration order on ties. With strict set, an unavailable
// preferred provider yields no selection instead of falling back.
func SelectProvider(providers []domain.Provider, preferred string, strict bool) (domain.Provider, bool) {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		for _, p := range providers {
			if p.Name == preferred && available(p) {
				return p, true
			}
		}
		if strict {
			return domain.Provider{}, false
		}
	}

	best := -1
	for i, p := range providers {
		if !available(p) {
			continue
		}
		if best < 0 || p.CostPerMessage.LessThan(providers[best].CostPerMessage) {
			best = i
		}
	}
	if best < 0 {
		return domain.Provider{}, false
	}
	return providers[best], true
}

func available(p domain.Provider) bool {
	return p.Enabled && p.HasHeadroom()
}
