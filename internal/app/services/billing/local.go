package billing

import (
	"context"
	"fmt"
	"sync"
)

// LocalProvider keeps customers in memory and never calls out.
type LocalProvider struct {
	mu        sync.Mutex
	seq       int
	customers []Customer
	subs      []ProviderSubscription
}

// NewLocalProvider returns an empty in-memory provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) ListCustomer(_ context.Context, email string) ([]Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Customer
	for _, c := range p.customers {
		if c.Email == email {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *LocalProvider) CreateCustomer(_ context.Context, email, name string) (Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	c := Customer{ID: fmt.Sprintf("cus_local_%d", p.seq), Email: email, Name: name}
	p.customers = append(p.customers, c)
	return c, nil
}

func (p *LocalProvider) CreateSubscription(_ context.Context, customerID, priceID string) (ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	s := ProviderSubscription{
		ID:         fmt.Sprintf("sub_local_%d", p.seq),
		CustomerID: customerID,
		PriceID:    priceID,
		Status:     "active",
	}
	p.subs = append(p.subs, s)
	return s, nil
}

// ListPlans returns nothing; the plan catalogue alone describes local plans.
func (p *LocalProvider) ListPlans(context.Context, []string) ([]Price, error) {
	return nil, nil
}

func (p *LocalProvider) CheckConfiguration(context.Context) error { return nil }

// Subscriptions returns the subscriptions created so far.
func (p *LocalProvider) Subscriptions() []ProviderSubscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProviderSubscription(nil), p.subs...)
}
