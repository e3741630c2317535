package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/cache"
	svcerrors "github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

func strPtr(s string) *string { return &s }

func newService(t *testing.T) (*Service, *memory.Store, *cache.Cache[user.User]) {
	t.Helper()
	store := memory.New()
	c := cache.New[user.User]("user", 100, 30*time.Minute)
	return New(store, store, c, logging.NewDiscard()), store, c
}

func TestGetCachesAndInvalidates(t *testing.T) {
	svc, store, c := newService(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.User{Name: "Ada", Email: "ada@example.com", SummariesEnabled: true})
	require.NoError(t, err)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, 1, c.Len())

	updated, err := svc.UpdateProfile(ctx, u.ID, ProfileInput{Name: strPtr("  Ada L.  ")})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, 0, c.Len(), "write must invalidate the cached user")

	_, err = svc.UpdateProfile(ctx, u.ID, ProfileInput{Name: strPtr("   ")})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))

	_, err = svc.Get(ctx, "missing")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeNotFound))
}

func TestPreferences(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.User{Name: "Ada", Email: "ada@example.com", SummariesEnabled: true})
	require.NoError(t, err)

	prefs, err := svc.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, prefs.SummariesEnabled)

	_, err = svc.UpdatePreferences(ctx, u.ID, user.Preferences{SummariesEnabled: false})
	require.NoError(t, err)
	prefs, err = svc.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, prefs.SummariesEnabled)
}

func TestAdminList(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		u, err := store.CreateUser(ctx, user.User{
			Name:      fmt.Sprintf("User %02d", i),
			Email:     fmt.Sprintf("user%02d@example.com", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		plan := subscription.PlanFree
		if i%3 == 0 {
			plan = subscription.PlanPro
		}
		_, err = store.CreateSubscription(ctx, subscription.Subscription{UserID: u.ID, Plan: plan, Status: subscription.StatusActive})
		require.NoError(t, err)
	}

	res, err := svc.List(ctx, AdminQuery{})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Total)
	assert.Len(t, res.Users, DefaultPageSize)
	assert.Equal(t, "User 11", res.Users[0].User.Name)

	res, err = svc.List(ctx, AdminQuery{Page: 2})
	require.NoError(t, err)
	assert.Len(t, res.Users, 2)

	res, err = svc.List(ctx, AdminQuery{FilterPlan: "pro"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)

	res, err = svc.List(ctx, AdminQuery{SearchName: "user 0", PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Total)

	_, err = svc.List(ctx, AdminQuery{FilterStatus: "bogus"})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))
}

func TestAdminUpdate(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.User{Name: "Ada", Email: "ada@example.com", Role: user.RoleUser})
	require.NoError(t, err)

	res, err := svc.Update(ctx, u.ID, AdminUpdate{Role: strPtr("admin"), Plan: strPtr("PRO")})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, res.User.Role)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, subscription.PlanPro, res.Subscription.Plan)
	assert.Equal(t, subscription.StatusActive, res.Subscription.Status)

	res, err = svc.Update(ctx, u.ID, AdminUpdate{Status: strPtr("canceled")})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, res.Subscription.Status)
	assert.Equal(t, subscription.PlanPro, res.Subscription.Plan)

	_, err = svc.Update(ctx, u.ID, AdminUpdate{Role: strPtr("root")})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))
	_, err = svc.Update(ctx, u.ID, AdminUpdate{Plan: strPtr("GOLD")})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))
}
