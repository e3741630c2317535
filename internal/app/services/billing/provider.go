// Package billing links users to billing customers and subscription plans.
package billing

import "context"

// Customer is a billing-side customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Price is a recurring price offered by the provider.
type Price struct {
	ID          string  `json:"id"`
	ProductName string  `json:"productName,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Interval    string  `json:"interval"`
}

// ProviderSubscription is the provider's view of a subscription.
type ProviderSubscription struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	PriceID    string `json:"priceId"`
	Status     string `json:"status"`
}

// Provider abstracts the payment processor.
type Provider interface {
	Name() string
	ListCustomer(ctx context.Context, email string) ([]Customer, error)
	CreateCustomer(ctx context.Context, email, name string) (Customer, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (ProviderSubscription, error)
	ListPlans(ctx context.Context, priceIDs []string) ([]Price, error)
	CheckConfiguration(ctx context.Context) error
}
