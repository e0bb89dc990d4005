package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

// Service builds obligation views from the stores.
type Service struct {
	enrollments store.EnrollmentStore
	courses     store.CourseStore
	charges     store.ChargeStore
	logger      *slog.Logger
}

// NewService creates a billing Service.
func NewService(enrollments store.EnrollmentStore, courses store.CourseStore, charges store.ChargeStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{enrollments: enrollments, courses: courses, charges: charges, logger: logger}
}

// EnrollmentView is the reconciled schedule of one enrollment.
type EnrollmentView struct {
	Enrollment model.Enrollment
	Course     model.Course
	Projection Projection
	Cycles     []Cycle
	Reconciliation
}

// Obligations returns one view per active enrollment of the account, in
// enrollment order.
func (s *Service) Obligations(ctx context.Context, accountID string) ([]EnrollmentView, error) {
	enrollments, err := s.enrollments.ListActiveEnrollments(ctx, store.EnrollmentFilter{AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}

	views := make([]EnrollmentView, 0, len(enrollments))
	for _, e := range enrollments {
		v, err := s.view(ctx, e)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) view(ctx context.Context, e model.Enrollment) (EnrollmentView, error) {
	course, err := s.courses.GetCourse(ctx, e.CourseID)
	if err != nil {
		return EnrollmentView{}, fmt.Errorf("loading course %s: %w", e.CourseID, err)
	}
	charges, err := s.charges.ListCharges(ctx, store.ChargeFilter{AccountID: e.AccountID, CourseID: e.CourseID})
	if err != nil {
		return EnrollmentView{}, fmt.Errorf("listing charges for %s: %w", e.CourseID, err)
	}

	cycles := Generate(InputFor(course, e))
	rec := Reconcile(cycles, charges, course.PaymentType)
	for _, c := range rec.Unmatched {
		s.logger.Debug("cycle not payable yet",
			"error", model.ErrUnmatchedCycle,
			"account", e.AccountID,
			"course", e.CourseID,
			"cycle", c.Label,
		)
	}

	return EnrollmentView{
		Enrollment:     e,
		Course:         course,
		Projection:     Project(course),
		Cycles:         cycles,
		Reconciliation: rec,
	}, nil
}

// EnsurePayable checks that a checkout selection respects sequential
// settlement. For every course in the selection, the selected charges must be
// the earliest unpaid cycles of that enrollment, starting with the pending one.
func (s *Service) EnsurePayable(ctx context.Context, accountID string, selected []model.OutstandingCharge) error {
	byCourse := make(map[string]map[string]bool)
	var order []string
	for _, ch := range selected {
		if ch.IsPaid() {
			return fmt.Errorf("%w: charge %s already paid", model.ErrChargeNotPayable, ch.ID)
		}
		if _, seen := byCourse[ch.CourseID]; !seen {
			byCourse[ch.CourseID] = make(map[string]bool)
			order = append(order, ch.CourseID)
		}
		byCourse[ch.CourseID][ch.ID] = true
	}

	for _, courseID := range order {
		enrollments, err := s.enrollments.ListActiveEnrollments(ctx, store.EnrollmentFilter{AccountID: accountID, CourseID: courseID})
		if err != nil {
			return fmt.Errorf("listing enrollments: %w", err)
		}
		if len(enrollments) == 0 {
			return fmt.Errorf("%w: no active enrollment in course %s", model.ErrChargeNotPayable, courseID)
		}
		v, err := s.view(ctx, enrollments[0])
		if err != nil {
			return err
		}

		want := byCourse[courseID]
		payable := v.PayableOrder()
		taken := 0
		for _, ch := range payable {
			if !want[ch.ID] {
				break
			}
			taken++
		}
		if taken != len(want) {
			for _, ch := range payable[taken:] {
				if want[ch.ID] {
					return fmt.Errorf("%w: %s must wait for earlier cycles of course %s", model.ErrChargeNotPayable, ch.Period, courseID)
				}
			}
			return fmt.Errorf("%w: charge does not match a scheduled cycle of course %s", model.ErrChargeNotPayable, courseID)
		}
	}
	return nil
}
