// Package flags serves country flag icons through a bounded, coalescing
// icon cache.
package flags

import (
	"strings"

	"idforge/pkg/domain"
)

// Icon is a loaded flag asset.
type Icon struct {
	Code        string
	ContentType string
	Data        []byte
}

// DefaultWarmSet is preloaded at startup.
var DefaultWarmSet = []string{"US", "GB", "DE", "FR", "JP", "CN"}

// NormalizeCode upper-cases an ISO 3166-1 alpha-2 code and rejects anything
// else. A trailing ".svg" is tolerated.
func NormalizeCode(raw string) (string, error) {
	code, err := domain.ParseCountryCode(strings.TrimSuffix(strings.TrimSpace(raw), ".svg"))
	if err != nil {
		return "", err
	}
	return code.String(), nil
}
