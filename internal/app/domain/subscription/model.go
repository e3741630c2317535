package subscription

import (
	"strings"
	"time"
)

// Status of a billing subscription.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusCanceled Status = "CANCELED"
	StatusPending  Status = "PENDING"
)

// Plan identifies the subscribed tier.
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// ParseStatus returns the status for raw, reporting whether it is known.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusActive, StatusCanceled, StatusPending:
		return s, true
	}
	return "", false
}

// ParsePlan returns the plan for raw, reporting whether it is known.
func ParsePlan(raw string) (Plan, bool) {
	switch p := Plan(strings.ToUpper(strings.TrimSpace(raw))); p {
	case PlanFree, PlanPro:
		return p, true
	}
	return "", false
}

// Subscription links a user to a billing customer and plan.
type Subscription struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Status     Status    `json:"status"`
	Plan       Plan      `json:"plan"`
	CustomerID string    `json:"customerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
