// Package normalize canonicalizes extracted facts: dates to ISO calendar
// dates, times to 24-hour HH:MM, free-text strings to lowercased
// whitespace-collapsed form, identifiers trimmed only. Normalization is
// idempotent and never fails; unparseable values become absent.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billaudit/pkg/models"
)

// Accepted input formats, tried in order. First successful parse wins.
var dateFormats = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"2006-01-02",
}

var timeFormats = []string{
	"3:04 PM",
	"3:04PM",
	"15:04",
}

var wsRe = regexp.MustCompile(`\s+`)

// Facts returns a normalized copy of the fact map. Line items pass through
// untouched; they are canonicalized by the phase-2 parser and the
// transaction normalizer.
func Facts(f models.FactMap) models.FactMap {
	out := f
	out.PatientName = Text(f.PatientName)
	out.ProviderName = Text(f.ProviderName)
	out.FacilityName = Text(f.FacilityName)
	out.Address = Text(f.Address)

	out.DateOfBirth = Date(f.DateOfBirth)
	out.DateOfService = Date(f.DateOfService)
	out.DateRangeStart = Date(f.DateRangeStart)
	out.DateRangeEnd = Date(f.DateRangeEnd)

	out.TimeOfService = Clock(f.TimeOfService)

	out.PhoneNumber = Identifier(f.PhoneNumber)
	out.ReceiptNumber = Identifier(f.ReceiptNumber)
	out.StoreID = Identifier(f.StoreID)
	out.ProcedureCode = Identifier(f.ProcedureCode)

	out.DocumentType = docType(f.DocumentType)
	return out
}

// Text lowercases and collapses internal whitespace. Empty becomes absent.
func Text(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.ToLower(wsRe.ReplaceAllString(strings.TrimSpace(*p), " "))
	if s == "" {
		return nil
	}
	return &s
}

// Identifier trims but preserves internal formatting.
func Identifier(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// Date parses against the accepted formats and emits YYYY-MM-DD, or absent
// when no format matches.
func Date(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

// Clock parses 12-hour (with AM/PM) or 24-hour input and emits HH:MM, or
// absent when neither matches.
func Clock(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.ToUpper(strings.TrimSpace(*p))
	if s == "" {
		return nil
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			hm := t.Format("15:04")
			return &hm
		}
	}
	return nil
}

// docType lowercases and coerces to the known document-type set; values
// outside the set become "unknown" so phase-2 dispatch stays total.
func docType(p *string) *string {
	norm := Text(p)
	if norm == nil {
		return nil
	}
	if !models.KnownDocumentTypes[models.DocumentType(*norm)] {
		unknown := string(models.DocUnknown)
		return &unknown
	}
	return norm
}

// Money rounds to cents. Negative amounts are rejected (nil): monetary
// facts in this domain are magnitudes, a negative value is extraction
// noise.
func Money(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	if d.IsNegative() {
		return nil
	}
	r := d.Round(2)
	return &r
}
