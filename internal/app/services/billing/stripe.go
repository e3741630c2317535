package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/seanotes/seanotes/internal/logging"
)

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the API endpoint, used against test servers.
	BaseURL string
}

// StripeProvider talks to Stripe through a per-key client.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a client API bound to cfg.SecretKey.
func NewStripeProvider(cfg StripeConfig, log *logging.Logger) (*StripeProvider, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	// GetBackendWithConfig fills in defaults on the config it is given, so each backend gets its own.
	backendCfg := func() *stripe.BackendConfig {
		c := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(2)}
		if log != nil {
			c.LeveledLogger = log.Logger
		}
		if cfg.BaseURL != "" {
			c.URL = stripe.String(cfg.BaseURL)
		}
		return c
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg()),
	}
	return &StripeProvider{api: client.New(cfg.SecretKey, backends)}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) ListCustomer(ctx context.Context, email string) ([]Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	var customers []Customer
	iter := p.api.Customers.List(params)
	for iter.Next() {
		c := iter.Customer()
		customers = append(customers, Customer{ID: c.ID, Email: c.Email, Name: c.Name})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe customers: %w", err)
	}
	return customers, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, name string) (Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	c, err := p.api.Customers.New(params)
	if err != nil {
		return Customer{}, fmt.Errorf("create stripe customer: %w", err)
	}
	return Customer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, customerID, priceID string) (ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(customerID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(priceID)}},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return ProviderSubscription{}, fmt.Errorf("create stripe subscription: %w", err)
	}
	return ProviderSubscription{
		ID:         sub.ID,
		CustomerID: customerID,
		PriceID:    priceID,
		Status:     string(sub.Status),
	}, nil
}

// ListPlans fetches the configured prices with their products expanded.
func (p *StripeProvider) ListPlans(ctx context.Context, priceIDs []string) ([]Price, error) {
	var prices []Price
	for _, id := range priceIDs {
		if id == "" {
			continue
		}
		params := &stripe.PriceParams{}
		params.Context = ctx
		params.AddExpand("product")
		pr, err := p.api.Prices.Get(id, params)
		if err != nil {
			return nil, fmt.Errorf("get stripe price %s: %w", id, err)
		}
		prices = append(prices, priceFromStripe(pr))
	}
	return prices, nil
}

// CheckConfiguration fetches the account balance, which any valid key may read.
func (p *StripeProvider) CheckConfiguration(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := p.api.Balance.Get(params); err != nil {
		return fmt.Errorf("stripe balance: %w", err)
	}
	return nil
}

func priceFromStripe(pr *stripe.Price) Price {
	out := Price{
		ID:       pr.ID,
		Amount:   float64(pr.UnitAmount) / 100,
		Currency: string(pr.Currency),
	}
	if pr.Recurring != nil {
		out.Interval = string(pr.Recurring.Interval)
	}
	if pr.Product != nil {
		out.ProductName = pr.Product.Name
		out.Description = pr.Product.Description
	}
	return out
}
