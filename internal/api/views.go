package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/eligibility"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/notify"
	"github.com/edubill-dev/edubill/internal/payment"
)

type cycleView struct {
	Number  int             `json:"number"`
	Label   string          `json:"label"`
	Period  string          `json:"period"`
	Start   time.Time       `json:"start"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

type obligationView struct {
	cycleView
	Status       billing.Status     `json:"status"`
	ChargeID     string             `json:"charge_id,omitempty"`
	ChargeStatus model.ChargeStatus `json:"charge_status,omitempty"`
}

type projectionView struct {
	DurationMonths int             `json:"duration_months"`
	TotalCycles    int             `json:"total_cycles"`
	TotalFee       decimal.Decimal `json:"total_fee"`
}

type enrollmentView struct {
	EnrollmentID     string                    `json:"enrollment_id"`
	Course           model.Course              `json:"course"`
	Projection       projectionView            `json:"projection"`
	Obligations      []obligationView          `json:"obligations"`
	History          []obligationView          `json:"history"`
	Unmatched        []cycleView               `json:"unmatched"`
	Orphans          []model.OutstandingCharge `json:"orphans,omitempty"`
	PayableChargeID  string                    `json:"payable_charge_id,omitempty"`
	TotalFee         decimal.Decimal           `json:"total_fee"`
	TotalPaid        decimal.Decimal           `json:"total_paid"`
	TotalOutstanding decimal.Decimal           `json:"total_outstanding"`
}

func newCycleView(c billing.Cycle) cycleView {
	return cycleView{
		Number:  c.Number,
		Label:   c.Label,
		Period:  c.Period,
		Start:   c.Start,
		DueDate: c.DueDate,
		Amount:  c.Amount,
	}
}

func newObligationViews(obs []billing.Obligation) []obligationView {
	out := make([]obligationView, len(obs))
	for i, o := range obs {
		out[i] = obligationView{cycleView: newCycleView(o.Cycle), Status: o.Status}
		if o.Charge != nil {
			out[i].ChargeID = o.Charge.ID
			out[i].ChargeStatus = o.Charge.Status
		}
	}
	return out
}

func newEnrollmentView(v billing.EnrollmentView) enrollmentView {
	ev := enrollmentView{
		EnrollmentID: v.Enrollment.ID,
		Course:       v.Course,
		Projection: projectionView{
			DurationMonths: v.Projection.DurationMonths,
			TotalCycles:    v.Projection.TotalCycles,
			TotalFee:       v.Projection.TotalFee,
		},
		Obligations:      newObligationViews(v.Obligations),
		History:          newObligationViews(v.History),
		Unmatched:        make([]cycleView, len(v.Unmatched)),
		Orphans:          v.Orphans,
		TotalFee:         v.TotalFee,
		TotalPaid:        v.TotalPaid,
		TotalOutstanding: v.TotalOutstanding,
	}
	for i, c := range v.Unmatched {
		ev.Unmatched[i] = newCycleView(c)
	}
	if p, ok := v.Payable(); ok {
		ev.PayableChargeID = p.Charge.ID
	}
	return ev
}

type cycleOptionView struct {
	Cycle     model.BillingCycle `json:"cycle"`
	MinMonths int                `json:"min_months"`
	Enabled   bool               `json:"enabled"`
}

type billingOptionsView struct {
	DurationMonths int                `json:"duration_months"`
	Options        []cycleOptionView  `json:"options"`
	Requested      model.BillingCycle `json:"requested,omitempty"`
	Effective      model.BillingCycle `json:"effective,omitempty"`
	Warning        string             `json:"warning,omitempty"`
}

type receiptView struct {
	Transaction model.Transaction         `json:"transaction"`
	Method      model.PaymentMethod       `json:"method"`
	Total       decimal.Decimal           `json:"total"`
	BalanceUsed decimal.Decimal           `json:"balance_used"`
	External    decimal.Decimal           `json:"external"`
	Charges     []model.OutstandingCharge `json:"charges"`
	Notice      notify.Notice             `json:"notice"`
}

func newReceiptView(r payment.Receipt) receiptView {
	return receiptView{
		Transaction: r.Transaction,
		Method:      r.Allocation.Method,
		Total:       r.Allocation.Total,
		BalanceUsed: r.Allocation.BalanceUsed,
		External:    r.Allocation.External,
		Charges:     r.Charges,
		Notice:      r.Notice,
	}
}

type failureView struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func newFailureViews(fs []ledger.Failure) []failureView {
	out := make([]failureView, len(fs))
	for i, f := range fs {
		out[i] = failureView{ID: f.ID, Error: f.Err.Error()}
	}
	return out
}

type batchView struct {
	Batch      *model.Batch           `json:"batch"`
	Allocation eligibility.Allocation `json:"allocation"`
	Entries    []model.Transaction    `json:"entries"`
	Failures   []failureView          `json:"failures"`
}

type previewView struct {
	AccountIDs []string               `json:"account_ids"`
	Allocation eligibility.Allocation `json:"allocation"`
}

type executionView struct {
	Executed []model.Transaction `json:"executed"`
	Failed   []failureView       `json:"failed"`
}
