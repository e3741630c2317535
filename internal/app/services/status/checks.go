package status

import (
	"context"
	"strings"

	"github.com/seanotes/seanotes/internal/config"
)

// ConfigChecker is implemented by adapters that can verify their own credentials.
type ConfigChecker interface {
	CheckConfiguration(ctx context.Context) error
}

// Pinger is implemented by the stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is a Checker built from a configuration test and an optional connectivity test.
type Probe struct {
	name        string
	description string
	required    bool
	configKeys  []string
	configured  bool
	ping        func(ctx context.Context) error
}

// NewProbe creates a probe. A nil ping means a configured dependency counts as connected.
func NewProbe(name, description string, required, configured bool, configKeys []string, ping func(ctx context.Context) error) Probe {
	return Probe{
		name:        name,
		description: description,
		required:    required,
		configKeys:  configKeys,
		configured:  configured,
		ping:        ping,
	}
}

func (p Probe) Name() string   { return p.name }
func (p Probe) Required() bool { return p.required }

// Check implements Checker.
func (p Probe) Check(ctx context.Context) ServiceStatus {
	st := ServiceStatus{
		Name:        p.name,
		Required:    p.required,
		Description: p.description,
	}
	if !p.configured {
		st.Error = "Not configured"
		st.ConfigToReview = p.configKeys
		return st
	}
	st.Configured = true
	if p.ping != nil {
		if err := p.ping(ctx); err != nil {
			st.Error = err.Error()
			st.ConfigToReview = p.configKeys
			return st
		}
	}
	st.Connected = true
	return st
}

// Database checks the primary store. backend names the store in use.
func Database(db Pinger, backend string) Probe {
	desc := "PostgreSQL store for users, notes and subscriptions"
	if backend == "memory" {
		desc = "In-memory store; data is lost on restart"
	}
	var ping func(context.Context) error
	if db != nil {
		ping = db.Ping
	}
	return NewProbe("Database", desc, true, db != nil, []string{"DATABASE_URL"}, ping)
}

// Auth checks that sessions can be signed.
func Auth(cfg config.AuthConfig) Probe {
	return NewProbe("Authentication", "Signs session tokens", true,
		strings.TrimSpace(cfg.Secret) != "", []string{"AUTH_SECRET"}, nil)
}

// Storage checks the invoice bucket.
func Storage(cfg config.StorageConfig, store ConfigChecker) Probe {
	return NewProbe("Storage", "DigitalOcean Spaces bucket for invoices", false,
		cfg.Configured() && store != nil,
		[]string{"SPACES_KEY_ID", "SPACES_KEY_SECRET", "SPACES_BUCKET_NAME", "SPACES_ENDPOINT"},
		pingOf(store))
}

// Email checks transactional e-mail delivery.
func Email(cfg config.EmailConfig, sender ConfigChecker) Probe {
	desc := "Resend e-mail delivery"
	if !cfg.Enabled {
		desc = "E-mail integration is disabled"
	}
	return NewProbe("Email", desc, false,
		cfg.Enabled && cfg.Configured() && sender != nil,
		[]string{"ENABLE_EMAIL_INTEGRATION", "RESEND_API_KEY", "RESEND_EMAIL_SENDER"},
		pingOf(sender))
}

// Billing checks the payment provider.
func Billing(cfg config.BillingConfig, billing ConfigChecker) Probe {
	return NewProbe("Billing", "Stripe subscriptions", false,
		cfg.Configured() && billing != nil,
		[]string{"STRIPE_SECRET_KEY", "STRIPE_FREE_PRICE_ID", "STRIPE_PRO_PRICE_ID"},
		pingOf(billing))
}

// Invoice checks that invoices can be authored by the model rather than the fallback template.
func Invoice(cfg config.AIConfig, configured bool) Probe {
	return NewProbe("Invoices", "AI-authored invoices", false, configured, aiKeys(cfg), nil)
}

// AI checks the inference provider.
func AI(cfg config.AIConfig, provider ConfigChecker) Probe {
	return NewProbe("AI", "Inference for titles, summaries and questions ("+strings.ToLower(cfg.Provider)+")", false,
		cfg.Configured() && provider != nil, aiKeys(cfg), pingOf(provider))
}

func aiKeys(cfg config.AIConfig) []string {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return []string{"GEMINI_API_KEY", "GEMINI_CHAT_MODEL", "GEMINI_EMBEDDING_MODEL"}
	case "local":
		return nil
	}
	return []string{"SERVERLESS_INFERENCE_API_KEY", "DO_INFERENCE_BASE_URL", "DO_INFERENCE_CHAT_MODEL"}
}

func pingOf(c ConfigChecker) func(context.Context) error {
	if c == nil {
		return nil
	}
	return c.CheckConfiguration
}
