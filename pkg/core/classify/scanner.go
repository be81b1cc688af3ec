package classify

import (
	"regexp"
	"strings"

	"billaudit/pkg/models"
)

var (
	cptCodeRe  = regexp.MustCompile(`\b\d{5}\b`)
	rxMarkerRe = regexp.MustCompile(`(?i)\bRx\b|\bNDC\b|refill`)
)

// Scan emits the fixed-shape structural summary used to pick between
// heuristic and model extraction. Pure function; the flags also land in
// the workflow log's pre_extraction section.
func Scan(text string) models.PreFacts {
	return models.PreFacts{
		HasCPTCodes:    cptTokenRe.MatchString(text) || cptCodeRe.MatchString(text),
		HasDentalCodes: dentalCodeRe.MatchString(text),
		HasRxMarkers:   rxMarkerRe.MatchString(text),
		LineCount:      strings.Count(text, "\n") + 1,
		CharCount:      len(text),
	}
}
