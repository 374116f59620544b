package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/archive"
	"kasirkredit/backend/internal/cache"
	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/metrics"
	"kasirkredit/backend/internal/money"
	"kasirkredit/backend/internal/registry"
	"kasirkredit/backend/internal/store"
	"kasirkredit/backend/internal/xid"
)

const dateLayout = "2006-01-02"

// ErrOutsideStore is returned when a cashier names a store other than the one
// their session is scoped to.
var ErrOutsideStore = errors.New("store is outside the session scope")

var ErrRegistryUnavailable = errors.New("customer registry is unavailable")

type Options struct {
	DefaultStoreID      string
	DefaultIntervalDays int
	CurrencySymbol      string
	SummaryCacheTTL     time.Duration
	Summaries           cache.SummaryCache
	Archive             archive.Store
	Registry            registry.Client
	Logger              logrus.FieldLogger
	Metrics             *metrics.Metrics
}

type Service struct {
	repo           store.Repository
	summaries      cache.SummaryCache
	archive        archive.Store
	registry       registry.Client
	log            logrus.FieldLogger
	metrics        *metrics.Metrics
	defaultStoreID string
	intervalDays   int
	currency       string
	summaryTTL     time.Duration
	now            func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.DefaultIntervalDays <= 0 {
		opts.DefaultIntervalDays = ledger.DefaultIntervalDays
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = money.DefaultSymbol
	}
	if opts.SummaryCacheTTL <= 0 {
		opts.SummaryCacheTTL = time.Minute
	}
	if opts.Summaries == nil {
		opts.Summaries = cache.NoopSummaryCache{}
	}
	if opts.Archive == nil {
		opts.Archive = archive.NoopStore{}
	}
	if opts.Registry == nil {
		opts.Registry = registry.NoopClient{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Service{
		repo:           repo,
		summaries:      opts.Summaries,
		archive:        opts.Archive,
		registry:       opts.Registry,
		log:            opts.Logger.WithField("component", "service"),
		metrics:        opts.Metrics,
		defaultStoreID: opts.DefaultStoreID,
		intervalDays:   opts.DefaultIntervalDays,
		currency:       opts.CurrencySymbol,
		summaryTTL:     opts.SummaryCacheTTL,
		now:            time.Now,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, actor domain.Actor, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	storeID, err := s.storeFor(actor, storeID)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

// storeFor resolves the store a request acts on. Sessions default to their
// own store; only admins may name another one. Callers without a session
// store, such as the reminder job, fall back to the default store.
func (s *Service) storeFor(actor domain.Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	switch {
	case actor.StoreID == "" && requested == "":
		return s.defaultStoreID, nil
	case actor.StoreID == "":
		return requested, nil
	case requested == "" || requested == actor.StoreID:
		return actor.StoreID, nil
	case actor.Role == "admin":
		return requested, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrOutsideStore, requested)
	}
}

// logAudit writes to storeID, or to the actor's store when storeID is empty.
func (s *Service) logAudit(ctx context.Context, actor domain.Actor, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = actor.StoreID
	}
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if actor.Username == "" {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}

func (s *Service) invalidateSummary(ctx context.Context, storeID string) {
	if err := s.summaries.Invalidate(ctx, storeID); err != nil {
		s.log.WithError(err).WithField("store_id", storeID).Warn("failed to invalidate debt summary cache")
	}
}

// parseDay reads a YYYY-MM-DD date and falls back to today (UTC) when empty.
func (s *Service) parseDay(value string, field string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ledger.Day(s.now()), nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", store.ErrInvalidInput, field)
	}
	return parsed.UTC(), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer, domain.PaymentMethodMobileWallet:
		return true
	default:
		return false
	}
}
