// Package rules is the deterministic rule engine: pure functions over fact
// bundles that produce issues without any model call. Calling a rule twice
// with the same facts returns the same issues in the same order.
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"billaudit/pkg/models"
)

// Issues runs every deterministic rule over the facts and returns the
// emitted issues in rule order.
func Issues(f *models.FactMap) []models.Issue {
	if f == nil {
		return nil
	}
	var out []models.Issue
	out = append(out, duplicateMedical(f)...)
	out = append(out, duplicateDental(f)...)
	return out
}

// Savings is the deterministic-savings total for the run meta: duplicate
// charge savings plus denied FSA submissions. The denied-FSA portion
// contributes to savings only; it does not emit issues.
func Savings(f *models.FactMap) decimal.Decimal {
	total := decimal.Zero
	for _, iss := range Issues(f) {
		if iss.MaxSavings != nil {
			total = total.Add(*iss.MaxSavings)
		}
	}
	return total.Add(DeniedFSATotal(f))
}

// DeniedFSATotal sums amount_submitted over FSA claim rows that were
// reimbursed exactly zero.
func DeniedFSATotal(f *models.FactMap) decimal.Decimal {
	total := decimal.Zero
	if f == nil {
		return total
	}
	for _, item := range f.FSAClaimItems {
		if item.AmountSubmitted == nil || item.AmountReimbursed == nil {
			continue
		}
		if item.AmountReimbursed.IsZero() {
			total = total.Add(*item.AmountSubmitted)
		}
	}
	return total
}

// dupKey groups line items that would be the same billable event.
type dupKey struct {
	date string
	code string
}

// duplicateMedical emits one duplicate_charge issue per (date_of_service,
// cpt_code) pair that appears more than once. The savings are the patient
// responsibility of every occurrence after the first.
func duplicateMedical(f *models.FactMap) []models.Issue {
	type group struct {
		count   int
		savings decimal.Decimal
	}
	groups := map[dupKey]*group{}
	var order []dupKey

	for _, item := range f.MedicalLineItems {
		if item.CPTCode == nil || *item.CPTCode == "" {
			continue
		}
		k := dupKey{date: item.DateOfService, code: *item.CPTCode}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		g.count++
		if g.count > 1 && item.PatientResponsibility != nil {
			g.savings = g.savings.Add(*item.PatientResponsibility)
		}
	}

	var out []models.Issue
	for _, k := range order {
		g := groups[k]
		if g.count < 2 {
			continue
		}
		out = append(out, duplicateIssue(k, g.count, g.savings, "CPT"))
	}
	return out
}

// duplicateDental is the same rule over (date_of_service, cdt_code).
func duplicateDental(f *models.FactMap) []models.Issue {
	type group struct {
		count   int
		savings decimal.Decimal
	}
	groups := map[dupKey]*group{}
	var order []dupKey

	for _, item := range f.DentalLineItems {
		if item.CDTCode == nil || *item.CDTCode == "" {
			continue
		}
		k := dupKey{date: item.DateOfService, code: *item.CDTCode}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		g.count++
		if g.count > 1 && item.PatientResponsibility != nil {
			g.savings = g.savings.Add(*item.PatientResponsibility)
		}
	}

	var out []models.Issue
	for _, k := range order {
		g := groups[k]
		if g.count < 2 {
			continue
		}
		out = append(out, duplicateIssue(k, g.count, g.savings, "CDT"))
	}
	return out
}

func duplicateIssue(k dupKey, count int, savings decimal.Decimal, codeKind string) models.Issue {
	code := k.code
	date := k.date
	action := "Dispute the duplicate charge with the billing provider and request an itemized correction."
	s := savings
	iss := models.Issue{
		Type:              models.IssueDuplicateCharge,
		Summary:           fmt.Sprintf("%s %s billed %d times on the same date of service", codeKind, code, count),
		Evidence:          fmt.Sprintf("%s code %s appears %d times for date of service %s", codeKind, code, count, dateOrUnknown(date)),
		Code:              &code,
		RecommendedAction: &action,
		Source:            models.SourceDeterministic,
		Confidence:        1.0,
		MaxSavings:        &s,
	}
	if date != "" {
		iss.Date = &date
	}
	return iss
}

func dateOrUnknown(d string) string {
	if d == "" {
		return "unknown"
	}
	return d
}
