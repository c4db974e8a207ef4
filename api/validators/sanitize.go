package validators

import (
	"strings"

	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeAttributes trims attribute names and options. Option matching is
// case-sensitive, so case is left untouched.
func SanitizeAttributes(attrs []types.SelectedAttribute, maxLen int) []types.SelectedAttribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]types.SelectedAttribute, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, types.SelectedAttribute{
			Name:   SanitizeString(attr.Name, maxLen),
			Option: SanitizeString(attr.Option, maxLen),
		})
	}
	return out
}
