package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"billaudit/pkg/core/llm"
	"billaudit/pkg/core/normalize"
	"billaudit/pkg/core/prompt"
	"billaudit/pkg/core/utils"
	"billaudit/pkg/models"
)

// Phase2Parser runs the per-document-type line-item extraction pass.
// Document types with no line-item concept (generic) are a no-op.
type Phase2Parser struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewPhase2Parser builds the parser over the same backend that performed
// phase-1 so both passes share one provider session.
func NewPhase2Parser(provider llm.Provider, logger *zap.Logger) *Phase2Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Phase2Parser{provider: provider, logger: logger}
}

// Run dispatches on the normalized document type, attaches parsed line
// items to the fact map, and records counts or a per-type error string
// into the extraction log. A parse failure is reported as a wrapped
// ErrPhase2Failed but leaves phase-1 facts intact.
func (p *Phase2Parser) Run(ctx context.Context, docType models.DocumentType, text string, facts *models.FactMap, xlog *models.ExtractionLog) error {
	switch docType {
	case models.DocPharmacyReceipt, models.DocFSAReceipt:
		return p.receiptItems(ctx, text, facts, xlog)
	case models.DocMedicalBill:
		return p.medicalItems(ctx, text, facts, xlog)
	case models.DocDentalBill:
		return p.dentalItems(ctx, text, facts, xlog)
	case models.DocInsuranceEOB, models.DocInsuranceClaimHist, models.DocInsuranceDocument:
		return p.insuranceItems(ctx, text, facts, xlog)
	case models.DocFSAClaimHistory:
		return p.fsaItems(ctx, text, facts, xlog)
	default:
		return nil
	}
}

type receiptEnvelope struct {
	ReceiptItems []models.ReceiptItem `json:"receipt_items"`
}

func (p *Phase2Parser) receiptItems(ctx context.Context, text string, facts *models.FactMap, xlog *models.ExtractionLog) error {
	var env receiptEnvelope
	if err := p.runInto(ctx, prompt.ReceiptItems(text), &env); err != nil {
		xlog.ReceiptExtractionError = err.Error()
		return fmt.Errorf("%w: receipt items: %v", models.ErrPhase2Failed, err)
	}
	for i := range env.ReceiptItems {
		env.ReceiptItems[i].Amount = normalize.Money(env.ReceiptItems[i].Amount)
	}
	facts.ReceiptItems = env.ReceiptItems
	n := len(env.ReceiptItems)
	xlog.ReceiptItemCount = &n
	return nil
}

type medicalEnvelope struct {
	MedicalLineItems []models.MedicalLineItem `json:"medical_line_items"`
}

func (p *Phase2Parser) medicalItems(ctx context.Context, text string, facts *models.FactMap, xlog *models.ExtractionLog) error {
	var env medicalEnvelope
	if err := p.runInto(ctx, prompt.MedicalItems(text), &env); err != nil {
		xlog.MedicalExtractionError = err.Error()
		return fmt.Errorf("%w: medical line items: %v", models.ErrPhase2Failed, err)
	}
	for i := range env.MedicalLineItems {
		item := &env.MedicalLineItems[i]
		item.DateOfService = normalizeItemDate(item.DateOfService)
		item.Billed = normalize.Money(item.Billed)
		item.Allowed = normalize.Money(item.Allowed)
		item.PatientResponsibility = normalize.Money(item.PatientResponsibility)
	}
	facts.MedicalLineItems = env.MedicalLineItems
	n := len(env.MedicalLineItems)
	xlog.MedicalItemCount = &n
	return nil
}

type dentalEnvelope struct {
	DentalLineItems []models.DentalLineItem `json:"dental_line_items"`
}

func (p *Phase2Parser) dentalItems(ctx context.Context, text string, facts *models.FactMap, xlog *models.ExtractionLog) error {
	var env dentalEnvelope
	if err := p.runInto(ctx, prompt.DentalItems(text), &env); err != nil {
		xlog.DentalExtractionError = err.Error()
		return fmt.Errorf("%w: dental line items: %v", models.ErrPhase2Failed, err)
	}
	for i := range env.DentalLineItems {
		item := &env.DentalLineItems[i]
		item.DateOfService = normalizeItemDate(item.DateOfService)
		item.Billed = normalize.Money(item.Billed)
		item.PatientResponsibility = normalize.Money(item.PatientResponsibility)
	}
	facts.DentalLineItems = env.DentalLineItems
	n := len(env.DentalLineItems)
	xlog.DentalItemCount = &n
	return nil
}

type insuranceEnvelope struct {
	InsuranceClaimItems []models.InsuranceClaimItem `json:"insurance_claim_items"`
}

func (p *Phase2Parser) insuranceItems(ctx context.Context, text string, facts *models.FactMap, xlog *models.ExtractionLog) error {
	var env insuranceEnvelope
	if err := p.runInto(ctx, prompt.InsuranceItems(text), &env); err != nil {
		xlog.InsuranceExtractionError = err.Error()
		return fmt.Errorf("%w: insurance claim items: %v", models.ErrPhase2Failed, err)
	}
	for i := range env.InsuranceClaimItems {
		item := &env.InsuranceClaimItems[i]
		item.Date = normalizeItemDate(item.Date)
		item.Billed = normalize.Money(item.Billed)
		item.Allowed = normalize.Money(item.Allowed)
		item.InsurancePaid = normalize.Money(item.InsurancePaid)
		item.PatientResponsibility = normalize.Money(item.PatientResponsibility)
	}
	facts.InsuranceClaimItems = env.InsuranceClaimItems
	n := len(env.InsuranceClaimItems)
	xlog.InsuranceItemCount = &n
	return nil
}

type fsaEnvelope struct {
	FSAClaimItems []models.FSAClaimItem `json:"fsa_claim_items"`
}

func (p *Phase2Parser) fsaItems(ctx context.Context, text string, facts *models.FactMap, xlog *models.ExtractionLog) error {
	var env fsaEnvelope
	if err := p.runInto(ctx, prompt.FSAItems(text), &env); err != nil {
		xlog.FSAExtractionError = err.Error()
		return fmt.Errorf("%w: fsa claim items: %v", models.ErrPhase2Failed, err)
	}
	for i := range env.FSAClaimItems {
		item := &env.FSAClaimItems[i]
		item.DateSubmitted = normalize.Date(item.DateSubmitted)
		item.AmountSubmitted = normalize.Money(item.AmountSubmitted)
		item.AmountReimbursed = normalize.Money(item.AmountReimbursed)
	}
	facts.FSAClaimItems = env.FSAClaimItems
	n := len(env.FSAClaimItems)
	xlog.FSAItemCount = &n
	return nil
}

func (p *Phase2Parser) runInto(ctx context.Context, promptText string, out interface{}) error {
	resp, err := p.provider.RunPrompt(ctx, promptText)
	if err != nil {
		return err
	}
	if err := utils.SmartUnmarshal(resp, out); err != nil {
		p.logger.Warn("line-item response unparseable", zap.Error(err))
		return err
	}
	return nil
}

func normalizeItemDate(raw string) string {
	d := raw
	if iso := normalize.Date(&d); iso != nil {
		return *iso
	}
	return raw
}
