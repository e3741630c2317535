package billing

import (
	"context"
	stderrors "errors"

	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

// Plan is a catalogue entry enriched with provider pricing.
type Plan struct {
	Key         subscription.Plan `json:"key"`
	PriceID     string            `json:"priceId,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Interval    string            `json:"interval"`
	Features    []string          `json:"features"`
}

// Service manages subscriptions.
type Service struct {
	provider Provider
	subs     storage.SubscriptionStore
	catalog  *config.PlansConfig
	priceIDs map[subscription.Plan]string
	log      *logging.Logger
}

// New constructs a billing service. A nil catalogue uses the built-in plans.
func New(provider Provider, subs storage.SubscriptionStore, catalog *config.PlansConfig, cfg config.BillingConfig, log *logging.Logger) *Service {
	if provider == nil {
		provider = NewLocalProvider()
	}
	if catalog == nil {
		catalog = config.DefaultPlans()
	}
	if log == nil {
		log = logging.NewDefault("billing")
	}
	return &Service{
		provider: provider,
		subs:     subs,
		catalog:  catalog,
		priceIDs: map[subscription.Plan]string{
			subscription.PlanFree: cfg.FreePriceID,
			subscription.PlanPro:  cfg.ProPriceID,
		},
		log: log,
	}
}

// ProviderName identifies the configured payment processor.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// CheckConfiguration verifies the provider credentials.
func (s *Service) CheckConfiguration(ctx context.Context) error {
	return s.provider.CheckConfiguration(ctx)
}

// PriceIDsConfigured reports whether every plan has a provider price.
func (s *Service) PriceIDsConfigured() bool {
	for _, id := range s.priceIDs {
		if id == "" {
			return false
		}
	}
	return true
}

// EnsureFreeSubscription gives u a FREE subscription unless one exists.
func (s *Service) EnsureFreeSubscription(ctx context.Context, u user.User) (subscription.Subscription, error) {
	existing, err := s.subs.GetSubscriptionByUser(ctx, u.ID)
	if err == nil {
		return existing, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return subscription.Subscription{}, errors.Internal("Failed to load subscription", err)
	}

	customers, err := s.provider.ListCustomer(ctx, u.Email)
	if err != nil {
		return subscription.Subscription{}, errors.Internal("Failed to look up billing customer", err)
	}
	var customer Customer
	if len(customers) > 0 {
		customer = customers[0]
	} else {
		customer, err = s.provider.CreateCustomer(ctx, u.Email, u.Name)
		if err != nil {
			return subscription.Subscription{}, errors.Internal("Failed to create billing customer", err)
		}
	}

	if priceID := s.priceIDs[subscription.PlanFree]; priceID != "" || s.provider.Name() == "local" {
		if _, err := s.provider.CreateSubscription(ctx, customer.ID, priceID); err != nil {
			return subscription.Subscription{}, errors.Internal("Failed to create subscription", err)
		}
	} else {
		s.log.WithField("user_id", u.ID).Warn("No free price configured; recording subscription locally only")
	}

	sub, err := s.subs.CreateSubscription(ctx, subscription.Subscription{
		UserID:     u.ID,
		Status:     subscription.StatusActive,
		Plan:       subscription.PlanFree,
		CustomerID: customer.ID,
	})
	if stderrors.Is(err, storage.ErrConflict) {
		return s.subs.GetSubscriptionByUser(ctx, u.ID)
	}
	if err != nil {
		return subscription.Subscription{}, errors.Internal("Failed to save subscription", err)
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":     u.ID,
		"customer_id": customer.ID,
	}).Info("Free subscription created")
	return sub, nil
}

// CurrentSubscription returns the user's subscription.
func (s *Service) CurrentSubscription(ctx context.Context, userID string) (subscription.Subscription, error) {
	sub, err := s.subs.GetSubscriptionByUser(ctx, userID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return subscription.Subscription{}, errors.NotFound("Subscription")
	}
	if err != nil {
		return subscription.Subscription{}, errors.Internal("Failed to load subscription", err)
	}
	return sub, nil
}

// Plans merges provider prices into the catalogue. Provider failures leave catalogue values.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	ids := make([]string, 0, len(s.priceIDs))
	for _, key := range s.catalog.Keys() {
		ids = append(ids, s.priceIDs[subscription.Plan(key)])
	}
	prices, err := s.provider.ListPlans(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("Falling back to plan catalogue")
		prices = nil
	}
	byID := make(map[string]Price, len(prices))
	for _, p := range prices {
		byID[p.ID] = p
	}

	plans := make([]Plan, 0, len(s.catalog.Plans))
	for _, key := range s.catalog.Keys() {
		plans = append(plans, s.merge(key, byID))
	}
	return plans, nil
}

// PlanDetails returns the catalogue entry for key without contacting the provider.
func (s *Service) PlanDetails(key subscription.Plan) Plan {
	return s.merge(string(key), nil)
}

func (s *Service) merge(key string, prices map[string]Price) Plan {
	plan := Plan{Key: subscription.Plan(key), PriceID: s.priceIDs[subscription.Plan(key)]}
	if settings, ok := s.catalog.Get(key); ok {
		plan.Name = settings.Name
		plan.Description = settings.Description
		plan.Amount = settings.Amount
		plan.Currency = settings.Currency
		plan.Interval = settings.Interval
		plan.Features = append([]string(nil), settings.Features...)
	} else {
		plan.Name = key
	}
	if p, ok := prices[plan.PriceID]; ok && plan.PriceID != "" {
		plan.Amount = p.Amount
		if p.Currency != "" {
			plan.Currency = p.Currency
		}
		if p.Interval != "" {
			plan.Interval = p.Interval
		}
		if plan.Description == "" {
			plan.Description = p.Description
		}
	}
	return plan
}
