// Package reminder notifies customers about overdue installments on a cron
// schedule.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/domain"
)

var ErrNoRecipient = errors.New("customer has no contact address")

// Reminder groups the overdue installments of one customer.
type Reminder struct {
	Customer          domain.Customer
	AsOf              string
	Installments      []domain.OverdueInstallment
	TotalPendingCents int64
}

type Notifier interface {
	Notify(ctx context.Context, reminder Reminder) error
}

// Source is the read side the job needs; the application service satisfies it.
type Source interface {
	OverdueSweep(ctx context.Context, asOf string, customerID string, limit int) (domain.SweepResponse, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

type Scheduler struct {
	source   Source
	notifier Notifier
	log      logrus.FieldLogger
	cron     *cron.Cron
	now      func() time.Time
}

func NewScheduler(source Source, notifier Notifier, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		source:   source,
		notifier: notifier,
		log:      log.WithField("component", "reminder"),
		cron:     cron.New(cron.WithLocation(time.UTC)),
		now:      time.Now,
	}
}

// Start registers the job under a standard five-field cron expression and
// starts the scheduler goroutine.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		sent, err := s.RunOnce(ctx, s.now().UTC())
		if err != nil {
			s.log.WithError(err).Error("overdue reminder run failed")
			return
		}
		s.log.WithField("sent", sent).Info("overdue reminder run finished")
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce sweeps overdue installments as of asOf and sends one reminder per
// customer. Failures for single customers are logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context, asOf time.Time) (int, error) {
	day := asOf.UTC().Format("2006-01-02")
	sweep, err := s.source.OverdueSweep(ctx, day, "", 0)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, reminder := range Group(day, sweep.Installments) {
		customer, err := s.source.GetCustomer(ctx, reminder.Customer.ID)
		if err != nil {
			s.log.WithError(err).WithField("customer_id", reminder.Customer.ID).Warn("reminder skipped, customer lookup failed")
			continue
		}
		reminder.Customer = customer

		if err := s.notifier.Notify(ctx, reminder); err != nil {
			entry := s.log.WithField("customer_id", customer.ID)
			if errors.Is(err, ErrNoRecipient) {
				entry.Debug("reminder skipped, no contact address")
			} else {
				entry.WithError(err).Warn("reminder delivery failed")
			}
			continue
		}
		sent++
	}
	return sent, nil
}

// Group splits sweep rows by customer, ordered by customer id. Rows keep the
// sweep order inside each group.
func Group(asOf string, rows []domain.OverdueInstallment) []Reminder {
	byCustomer := make(map[string]*Reminder)
	for _, row := range rows {
		r, ok := byCustomer[row.CustomerID]
		if !ok {
			r = &Reminder{
				Customer: domain.Customer{ID: row.CustomerID, FullName: row.CustomerName},
				AsOf:     asOf,
			}
			byCustomer[row.CustomerID] = r
		}
		r.Installments = append(r.Installments, row)
		r.TotalPendingCents += row.PendingCents
	}

	out := make([]Reminder, 0, len(byCustomer))
	for _, r := range byCustomer {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Customer.ID < out[j].Customer.ID
	})
	return out
}
