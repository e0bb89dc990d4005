package api

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/eligibility"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/payment"
)

// GET /v1/billing/options?months=6 or ?start=2025-01-01&end=2025-06-30,
// optionally with &cycle=quarterly to check a selection.
func (s *Server) billingOptions(c *fiber.Ctx) error {
	months, err := durationFromQuery(c)
	if err != nil {
		return err
	}

	view := billingOptionsView{DurationMonths: months}
	for _, o := range billing.Options(months) {
		view.Options = append(view.Options, cycleOptionView{Cycle: o.Cycle, MinMonths: o.MinMonths, Enabled: o.Enabled})
	}

	if raw := c.Query("cycle"); raw != "" {
		cycle, err := model.ParseBillingCycle(raw)
		if err != nil {
			return model.Invalid("cycle", err.Error())
		}
		effective, err := billing.CheckDuration(cycle, months)
		view.Requested = cycle
		view.Effective = effective
		if err != nil {
			view.Warning = err.Error()
		}
	}
	return jsonOK(c, "", view)
}

func durationFromQuery(c *fiber.Ctx) (int, error) {
	if raw := c.Query("months"); raw != "" {
		months, err := strconv.Atoi(raw)
		if err != nil || months < 0 {
			return 0, model.Invalid("months", "must be a non-negative integer")
		}
		return months, nil
	}
	start, err := time.Parse(time.DateOnly, c.Query("start"))
	if err != nil {
		return 0, model.Invalid("start", "must be a YYYY-MM-DD date")
	}
	end, err := time.Parse(time.DateOnly, c.Query("end"))
	if err != nil {
		return 0, model.Invalid("end", "must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return 0, model.Invalid("end", "must not be before start")
	}
	return billing.DurationMonths(start, end), nil
}

// GET /v1/accounts/:id/obligations
func (s *Server) obligations(c *fiber.Ctx) error {
	views, err := s.deps.Billing.Obligations(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]enrollmentView, len(views))
	for i, v := range views {
		out[i] = newEnrollmentView(v)
	}
	return jsonOK(c, "", out)
}

// GET /v1/accounts/:id/transactions
func (s *Server) transactions(c *fiber.Ctx) error {
	history, err := s.deps.Ledger.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if history == nil {
		history = []model.Transaction{}
	}
	return jsonOK(c, "", history)
}

// GET /v1/accounts/:id/verify
func (s *Server) verify(c *fiber.Ctx) error {
	violations, err := s.deps.Ledger.VerifyAccount(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	messages := make([]string, len(violations))
	for i, v := range violations {
		messages[i] = v.Error()
	}
	return jsonOK(c, "", fiber.Map{"valid": len(violations) == 0, "violations": messages})
}

type postingRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"`
	ScheduledFor *time.Time      `json:"scheduled_for"`
}

func (s *Server) parsePosting(c *fiber.Ctx) (postingRequest, error) {
	var req postingRequest
	if err := c.BodyParser(&req); err != nil {
		return req, model.Invalid("", fmt.Sprintf("malformed body: %v", err))
	}
	return req, nil
}

// POST /v1/accounts/:id/top-ups
func (s *Server) topUp(c *fiber.Ctx) error {
	return s.post(c, model.TypeTopUp)
}

// POST /v1/accounts/:id/charges
func (s *Server) charge(c *fiber.Ctx) error {
	return s.post(c, model.TypeCharge)
}

func (s *Server) post(c *fiber.Ctx, txType model.TransactionType) error {
	req, err := s.parsePosting(c)
	if err != nil {
		return err
	}
	params := ledger.PostParams{
		AccountID:   c.Params("id"),
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   req.Reference,
	}

	ctx := c.UserContext()
	var tx model.Transaction
	switch {
	case req.ScheduledFor != nil:
		tx, err = s.deps.Ledger.Schedule(ctx, ledger.ScheduleParams{PostParams: params, Type: txType, ScheduledFor: req.ScheduledFor})
	case txType == model.TypeTopUp:
		tx, err = s.deps.Ledger.TopUp(ctx, params)
	default:
		tx, err = s.deps.Ledger.Charge(ctx, params)
	}
	if err != nil {
		return err
	}
	return jsonCreated(c, "", tx)
}

type checkoutRequest struct {
	ChargeIDs  []string            `json:"charge_ids"`
	Method     model.PaymentMethod `json:"method"`
	Instrument *model.Instrument   `json:"instrument"`
}

// POST /v1/accounts/:id/checkout
func (s *Server) checkout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return model.Invalid("", fmt.Sprintf("malformed body: %v", err))
	}
	receipt, err := s.deps.Payments.Checkout(c.UserContext(), payment.CheckoutParams{
		AccountID:  c.Params("id"),
		ChargeIDs:  req.ChargeIDs,
		Method:     req.Method,
		Instrument: req.Instrument,
	})
	if err != nil {
		return err
	}
	return jsonCreated(c, receipt.Notice.Message, newReceiptView(receipt))
}

// POST /v1/transactions/:id/execute
func (s *Server) execute(c *fiber.Ctx) error {
	tx, err := s.deps.Ledger.Execute(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return jsonOK(c, "executed", tx)
}

// POST /v1/transactions/:id/cancel
func (s *Server) cancel(c *fiber.Ctx) error {
	tx, err := s.deps.Ledger.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return jsonOK(c, "cancelled", tx)
}

// POST /v1/scheduled/run
func (s *Server) runScheduled(c *fiber.Ctx) error {
	report, err := s.deps.Ledger.ExecuteDue(c.UserContext(), s.deps.Ledger.Now())
	if err != nil {
		return err
	}
	executed := report.Executed
	if executed == nil {
		executed = []model.Transaction{}
	}
	return jsonOK(c, "", executionView{Executed: executed, Failed: newFailureViews(report.Failed)})
}

type previewRequest struct {
	Mode     model.DistributionMode `json:"mode"`
	Amount   decimal.Decimal        `json:"amount"`
	Criteria eligibility.Criteria   `json:"criteria"`
}

// POST /v1/batches/preview
func (s *Server) previewBatch(c *fiber.Ctx) error {
	var req previewRequest
	if err := c.BodyParser(&req); err != nil {
		return model.Invalid("", fmt.Sprintf("malformed body: %v", err))
	}
	cands, alloc, err := s.deps.Ledger.Preview(c.UserContext(), req.Criteria, req.Mode, req.Amount)
	if err != nil {
		return err
	}
	ids := eligibility.AccountIDs(cands)
	if ids == nil {
		ids = []string{}
	}
	return jsonOK(c, "", previewView{AccountIDs: ids, Allocation: alloc})
}

// POST /v1/batches
func (s *Server) batchTopUp(c *fiber.Ctx) error {
	var req ledger.BatchParams
	if err := c.BodyParser(&req); err != nil {
		return model.Invalid("", fmt.Sprintf("malformed body: %v", err))
	}
	result, err := s.deps.Ledger.BatchTopUp(c.UserContext(), req)
	if err != nil {
		return err
	}
	if result.Batch == nil {
		msg := "no account was credited"
		if err := errors.Join(failureErrors(result.Failures)...); err != nil {
			msg = err.Error()
		}
		return jsonError(c, fiber.StatusUnprocessableEntity, msg)
	}

	return jsonCreated(c, "", batchView{
		Batch:      result.Batch,
		Allocation: result.Allocation,
		Entries:    result.Entries,
		Failures:   newFailureViews(result.Failures),
	})
}

func failureErrors(fs []ledger.Failure) []error {
	out := make([]error, len(fs))
	for i, f := range fs {
		out[i] = fmt.Errorf("%s: %w", f.ID, f.Err)
	}
	return out
}
