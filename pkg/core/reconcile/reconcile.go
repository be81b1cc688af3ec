// Package reconcile canonicalizes line items from multiple documents into
// transactions and deduplicates the same billable event seen in more than
// one document (a charge on a bill and again on the EOB, for example).
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"billaudit/pkg/core/normalize"
	"billaudit/pkg/models"
)

// Transaction variants, one per line-item family on the fact map.
const (
	VariantMedical   = "medical"
	VariantDental    = "dental"
	VariantPharmacy  = "pharmacy"
	VariantInsurance = "insurance"
	VariantFSA       = "fsa"
)

// CanonicalTransaction is one billable event in document-independent
// form. Fingerprint identity: same variant, date, code, cent-rounded
// amount and normalized provider means the same transaction, wherever it
// appeared. The variant leads the fingerprint so blank-code rows from
// different line-item families never collapse into one event.
type CanonicalTransaction struct {
	Variant     string           `json:"variant"`
	Date        string           `json:"date"`
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Provider    string           `json:"provider"`
	SourceDocID string           `json:"source_doc_id"`
	Fingerprint string           `json:"fingerprint"`
}

// NormalizeLineItems flattens every line-item variant on the fact map
// into canonical transactions tagged with the source document id.
func NormalizeLineItems(f *models.FactMap, sourceDocID string) []CanonicalTransaction {
	if f == nil {
		return nil
	}
	provider := ""
	if f.ProviderName != nil {
		provider = *f.ProviderName
	}

	var out []CanonicalTransaction
	for _, item := range f.MedicalLineItems {
		out = append(out, newTransaction(VariantMedical, item.DateOfService, deref(item.CPTCode),
			item.Description, item.PatientResponsibility, provider, sourceDocID))
	}
	for _, item := range f.DentalLineItems {
		out = append(out, newTransaction(VariantDental, item.DateOfService, deref(item.CDTCode),
			item.Description, item.PatientResponsibility, provider, sourceDocID))
	}
	for _, item := range f.ReceiptItems {
		date := ""
		if f.DateOfService != nil {
			date = *f.DateOfService
		}
		out = append(out, newTransaction(VariantPharmacy, date, "", item.Description, item.Amount, provider, sourceDocID))
	}
	for _, item := range f.InsuranceClaimItems {
		out = append(out, newTransaction(VariantInsurance, item.Date, "", "", item.PatientResponsibility, item.Provider, sourceDocID))
	}
	for _, item := range f.FSAClaimItems {
		out = append(out, newTransaction(VariantFSA, deref(item.DateSubmitted), "", item.Description,
			item.AmountSubmitted, deref(item.Merchant), sourceDocID))
	}
	return out
}

func newTransaction(variant, date, code, description string, amount *decimal.Decimal, provider, docID string) CanonicalTransaction {
	t := CanonicalTransaction{
		Variant:     variant,
		Date:        date,
		Code:        strings.TrimSpace(code),
		Description: canonicalText(description),
		Amount:      amount,
		Provider:    canonicalText(provider),
		SourceDocID: docID,
	}
	t.Fingerprint = fingerprint(t)
	return t
}

// canonicalText applies the lowercase and whitespace-collapse rule used
// for non-identifier strings throughout normalization.
func canonicalText(s string) string {
	if p := normalize.Text(&s); p != nil {
		return *p
	}
	return ""
}

func fingerprint(t CanonicalTransaction) string {
	amount := ""
	if t.Amount != nil {
		amount = t.Amount.Round(2).StringFixed(2)
	}
	code := strings.ToLower(strings.TrimSpace(t.Code))
	return fmt.Sprintf("%s|%s|%s|%s|%s", t.Variant, t.Date, code, amount, t.Provider)
}

// Provenance maps a transaction fingerprint to every document it was
// observed in, in first-seen order without repeats.
type Provenance map[string][]string

// Deduplicate collapses transactions sharing a fingerprint. The kept copy
// is the most populated one; on a populated-ness tie the copy from the
// lexicographically earliest document id wins, so the outcome does not
// depend on input order. Unique transactions come back in first-seen
// fingerprint order.
func Deduplicate(txns []CanonicalTransaction) ([]CanonicalTransaction, Provenance) {
	prov := Provenance{}
	index := map[string]int{}
	var unique []CanonicalTransaction

	for _, t := range txns {
		fp := t.Fingerprint
		if i, ok := index[fp]; ok {
			if !contains(prov[fp], t.SourceDocID) {
				prov[fp] = append(prov[fp], t.SourceDocID)
			}
			kept := unique[i]
			if better(t, kept) {
				unique[i] = t
			}
			continue
		}
		index[fp] = len(unique)
		unique = append(unique, t)
		prov[fp] = []string{t.SourceDocID}
	}
	return unique, prov
}

// better reports whether candidate should replace kept.
func better(candidate, kept CanonicalTransaction) bool {
	cp, kp := populated(candidate), populated(kept)
	if cp != kp {
		return cp > kp
	}
	return candidate.SourceDocID < kept.SourceDocID
}

func populated(t CanonicalTransaction) int {
	n := 0
	for _, s := range []string{t.Date, t.Code, t.Description, t.Provider} {
		if s != "" {
			n++
		}
	}
	if t.Amount != nil {
		n++
	}
	return n
}

// CoverageMatrix records which documents contributed each deduplicated
// transaction. Every unique transaction has a row and every row marks at
// least one document.
type CoverageMatrix struct {
	DocIDs []string      `json:"doc_ids"`
	Rows   []CoverageRow `json:"rows"`
}

// CoverageRow marks the documents a transaction appeared in. Amount is
// the reported amount; it is identical across documents by construction
// since the amount participates in the fingerprint.
type CoverageRow struct {
	Fingerprint string           `json:"fingerprint"`
	Amount      *decimal.Decimal `json:"amount"`
	Present     map[string]bool  `json:"present"`
}

// Coverage builds the matrix from a deduplication result.
func Coverage(unique []CanonicalTransaction, prov Provenance) CoverageMatrix {
	docSet := map[string]bool{}
	for _, docs := range prov {
		for _, id := range docs {
			docSet[id] = true
		}
	}
	docIDs := make([]string, 0, len(docSet))
	for id := range docSet {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	rows := make([]CoverageRow, 0, len(unique))
	for _, t := range unique {
		present := map[string]bool{}
		for _, id := range prov[t.Fingerprint] {
			present[id] = true
		}
		rows = append(rows, CoverageRow{Fingerprint: t.Fingerprint, Amount: t.Amount, Present: present})
	}
	return CoverageMatrix{DocIDs: docIDs, Rows: rows}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
