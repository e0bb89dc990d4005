package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/metrics"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/notify"
	"github.com/edubill-dev/edubill/internal/store"
)

// Service runs checkouts.
type Service struct {
	ledger  *ledger.Service
	billing *billing.Service
	charges store.ChargeStore
	bus     *notify.Bus
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewService creates a payment Service. bus and collector may be nil.
func NewService(ledgerSvc *ledger.Service, billingSvc *billing.Service, charges store.ChargeStore, bus *notify.Bus, collector *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:  ledgerSvc,
		billing: billingSvc,
		charges: charges,
		bus:     bus,
		metrics: collector,
		logger:  logger,
	}
}

// CheckoutParams holds the input of a checkout.
type CheckoutParams struct {
	AccountID  string              `json:"account_id" validate:"required"`
	ChargeIDs  []string            `json:"charge_ids" validate:"required,min=1,unique,dive,required"`
	Method     model.PaymentMethod `json:"method" validate:"required,oneof=balance card combined"`
	Instrument *model.Instrument   `json:"instrument,omitempty"`
}

// Receipt is the outcome of a successful checkout.
type Receipt struct {
	Transaction model.Transaction
	Allocation  Allocation
	Charges     []model.OutstandingCharge
	Notice      notify.Notice
}

// Checkout settles the selected charges in one ledger entry of type payment
// (amount = -total, balance_after = balance - balance used) carrying the
// course breakdown and funding legs, and marks every charge paid. Either all
// of it is persisted or none.
func (s *Service) Checkout(ctx context.Context, p CheckoutParams) (Receipt, error) {
	receipt, err := s.checkout(ctx, p)
	if err != nil {
		s.metrics.RecordPayment(string(p.Method), false, receipt.Allocation.BalanceUsed, receipt.Allocation.External)
		s.bus.Publish(ctx, notify.Failure("Payment failed", err))
		s.logger.WarnContext(ctx, "checkout failed", "account", p.AccountID, "method", p.Method, "error", err)
		return Receipt{}, err
	}

	s.metrics.RecordPayment(string(p.Method), true, receipt.Allocation.BalanceUsed, receipt.Allocation.External)
	s.bus.Publish(ctx, receipt.Notice)
	return receipt, nil
}

func (s *Service) checkout(ctx context.Context, p CheckoutParams) (Receipt, error) {
	if err := model.Check(p); err != nil {
		return Receipt{}, err
	}

	selected, err := s.load(ctx, p.ChargeIDs)
	if err != nil {
		return Receipt{}, err
	}
	for _, c := range selected {
		if c.AccountID != p.AccountID {
			return Receipt{}, model.Invalid("charge_ids", fmt.Sprintf("charge %s belongs to another account", c.ID))
		}
	}
	if err := s.billing.EnsurePayable(ctx, p.AccountID, selected); err != nil {
		return Receipt{}, err
	}

	var alloc Allocation
	var settled []model.OutstandingCharge
	tx, err := s.ledger.Apply(ctx, ledger.Mutation{
		AccountID: p.AccountID,
		Type:      model.TypePayment,
		Build: func(ctx context.Context, st store.Stores, acct model.Account) (model.Transaction, error) {
			// Re-read inside the unit of work so a concurrent checkout of the
			// same charge is caught.
			current := make([]model.OutstandingCharge, 0, len(p.ChargeIDs))
			for _, chargeID := range p.ChargeIDs {
				c, err := st.Charges.GetCharge(ctx, chargeID)
				if err != nil {
					return model.Transaction{}, fmt.Errorf("loading charge %s: %w", chargeID, err)
				}
				current = append(current, c)
			}

			var err error
			alloc, err = Allocate(AllocationInput{
				Charges:    current,
				Method:     p.Method,
				Balance:    acct.Balance,
				Instrument: p.Instrument,
			})
			if err != nil {
				return model.Transaction{}, err
			}
			settled = current

			return model.Transaction{
				Amount:      alloc.Total.Neg(),
				Description: describe(current),
				Courses:     courseLines(current),
				Legs:        alloc.Legs(),
			}, nil
		},
		Then: func(ctx context.Context, st store.Stores, posted model.Transaction) error {
			for _, c := range settled {
				if err := st.Charges.MarkPaid(ctx, c.ID, *posted.PostedAt); err != nil {
					return fmt.Errorf("marking charge %s paid: %w", c.ID, err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return Receipt{Allocation: alloc}, err
	}

	for i := range settled {
		settled[i].Status = model.ChargePaid
		settled[i].PaidAt = tx.PostedAt
	}
	return Receipt{
		Transaction: tx,
		Allocation:  alloc,
		Charges:     settled,
		Notice:      notify.Success("Payment successful", summarize(alloc)),
	}, nil
}

func (s *Service) load(ctx context.Context, ids []string) ([]model.OutstandingCharge, error) {
	out := make([]model.OutstandingCharge, 0, len(ids))
	for _, chargeID := range ids {
		c, err := s.charges.GetCharge(ctx, chargeID)
		if err != nil {
			return nil, fmt.Errorf("loading charge %s: %w", chargeID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func courseLines(charges []model.OutstandingCharge) []model.CourseLine {
	lines := make([]model.CourseLine, len(charges))
	for i, c := range charges {
		lines[i] = model.CourseLine{CourseID: c.CourseID, ChargeID: c.ID, Period: c.Period, Amount: c.Amount}
	}
	return lines
}

func describe(charges []model.OutstandingCharge) string {
	courses := make(map[string]bool)
	for _, c := range charges {
		courses[c.CourseID] = true
	}
	if len(courses) == 1 {
		return fmt.Sprintf("Payment for %s, %d cycle(s)", charges[0].CourseID, len(charges))
	}
	return fmt.Sprintf("Payment for %d courses, %d cycle(s)", len(courses), len(charges))
}

func summarize(a Allocation) string {
	var parts []string
	if a.BalanceUsed.IsPositive() {
		parts = append(parts, a.BalanceUsed.StringFixed(2)+" from balance")
	}
	if a.External.IsPositive() {
		card := "by card"
		if a.Instrument != nil {
			card = "by card ending " + a.Instrument.Last4
		}
		parts = append(parts, a.External.StringFixed(2)+" "+card)
	}
	return fmt.Sprintf("Paid %s: %s", a.Total.StringFixed(2), strings.Join(parts, ", "))
}
