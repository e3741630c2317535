// Package users manages profiles, preferences and the admin user listing.
package users

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/cache"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	maxNameLength   = 100
)

// ProfileInput holds optional profile changes.
type ProfileInput struct {
	Name  *string `json:"name"`
	Image *string `json:"image"`
}

// AdminQuery filters the admin listing.
type AdminQuery struct {
	Page         int
	PageSize     int
	SearchName   string
	FilterPlan   string
	FilterStatus string
}

// ListResult is one page of users.
type ListResult struct {
	Users []storage.UserWithSubscription `json:"users"`
	Total int                            `json:"total"`
}

// AdminUpdate holds optional administrative changes.
type AdminUpdate struct {
	Role   *string `json:"role"`
	Plan   *string `json:"plan"`
	Status *string `json:"status"`
}

// Service manages users.
type Service struct {
	users storage.UserStore
	subs  storage.SubscriptionStore
	cache *cache.Cache[user.User]
	log   *logging.Logger
}

// New constructs a user service. A nil cache disables caching.
func New(users storage.UserStore, subs storage.SubscriptionStore, c *cache.Cache[user.User], log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	return &Service{users: users, subs: subs, cache: c, log: log}
}

// Invalidate drops a cached user after an out-of-band write.
func (s *Service) Invalidate(userID string) {
	if s.cache != nil {
		s.cache.Delete(userID)
	}
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	if s.cache != nil {
		if u, ok := s.cache.Get(id); ok {
			return u, nil
		}
	}
	u, err := s.users.GetUser(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return user.User{}, errors.NotFound("User")
	}
	if err != nil {
		return user.User{}, errors.Internal("Failed to load user", err)
	}
	if s.cache != nil {
		s.cache.Set(id, u)
	}
	return u, nil
}

// UpdateProfile changes the user's display name or image.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return user.User{}, errors.BadRequest("Name is required")
		}
		if len([]rune(name)) > maxNameLength {
			return user.User{}, errors.BadRequest("Name is too long")
		}
		u.Name = name
	}
	if in.Image != nil {
		u.Image = strings.TrimSpace(*in.Image)
	}
	return s.save(ctx, u)
}

// Preferences returns the user's settings.
func (s *Service) Preferences(ctx context.Context, id string) (user.Preferences, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.Preferences{}, err
	}
	return user.Preferences{SummariesEnabled: u.SummariesEnabled}, nil
}

// UpdatePreferences replaces the user's settings.
func (s *Service) UpdatePreferences(ctx context.Context, id string, prefs user.Preferences) (user.Preferences, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.Preferences{}, err
	}
	u.SummariesEnabled = prefs.SummariesEnabled
	if _, err := s.save(ctx, u); err != nil {
		return user.Preferences{}, err
	}
	return prefs, nil
}

func (s *Service) save(ctx context.Context, u user.User) (user.User, error) {
	updated, err := s.users.UpdateUser(ctx, u)
	if stderrors.Is(err, storage.ErrNotFound) {
		return user.User{}, errors.NotFound("User")
	}
	if err != nil {
		return user.User{}, errors.Internal("Failed to update user", err)
	}
	s.Invalidate(u.ID)
	return updated, nil
}

// List pages users for administrators.
func (s *Service) List(ctx context.Context, q AdminQuery) (ListResult, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	query := storage.UserQuery{
		Search: strings.TrimSpace(q.SearchName),
		Offset: (page - 1) * size,
		Limit:  size,
	}
	if q.FilterPlan != "" {
		plan, ok := subscription.ParsePlan(q.FilterPlan)
		if !ok {
			return ListResult{}, errors.BadRequest("Invalid plan filter")
		}
		query.Plan = plan
	}
	if q.FilterStatus != "" {
		status, ok := subscription.ParseStatus(q.FilterStatus)
		if !ok {
			return ListResult{}, errors.BadRequest("Invalid status filter")
		}
		query.Status = status
	}

	list, total, err := s.users.ListUsers(ctx, query)
	if err != nil {
		return ListResult{}, errors.Internal("Failed to list users", err)
	}
	if list == nil {
		list = []storage.UserWithSubscription{}
	}
	return ListResult{Users: list, Total: total}, nil
}

// Update applies administrative changes to a user and their subscription.
func (s *Service) Update(ctx context.Context, id string, in AdminUpdate) (storage.UserWithSubscription, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return storage.UserWithSubscription{}, err
	}

	if in.Role != nil {
		role := strings.ToUpper(strings.TrimSpace(*in.Role))
		if role != string(user.RoleAdmin) && role != string(user.RoleUser) {
			return storage.UserWithSubscription{}, errors.BadRequest("Invalid role")
		}
		u.Role = user.Role(role)
		if u, err = s.save(ctx, u); err != nil {
			return storage.UserWithSubscription{}, err
		}
	}

	result := storage.UserWithSubscription{User: u}
	sub, err := s.subs.GetSubscriptionByUser(ctx, id)
	hasSub := err == nil
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return storage.UserWithSubscription{}, errors.Internal("Failed to load subscription", err)
	}

	if in.Plan != nil || in.Status != nil {
		if !hasSub {
			sub = subscription.Subscription{UserID: id, Plan: subscription.PlanFree, Status: subscription.StatusActive}
		}
		if in.Plan != nil {
			plan, ok := subscription.ParsePlan(*in.Plan)
			if !ok {
				return storage.UserWithSubscription{}, errors.BadRequest("Invalid plan")
			}
			sub.Plan = plan
		}
		if in.Status != nil {
			status, ok := subscription.ParseStatus(*in.Status)
			if !ok {
				return storage.UserWithSubscription{}, errors.BadRequest("Invalid status")
			}
			sub.Status = status
		}
		if hasSub {
			sub, err = s.subs.UpdateSubscription(ctx, sub)
		} else {
			sub, err = s.subs.CreateSubscription(ctx, sub)
		}
		if err != nil {
			return storage.UserWithSubscription{}, errors.Internal("Failed to update subscription", err)
		}
		hasSub = true
	}
	if hasSub {
		result.Subscription = &sub
	}

	s.log.WithFields(map[string]interface{}{"user_id": id}).Info("User updated by administrator")
	return result, nil
}
