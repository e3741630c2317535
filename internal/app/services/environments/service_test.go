package environments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/app/system"
	svcerrors "github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

type nameRecorder struct {
	mu    sync.Mutex
	names map[string]string
}

func (r *nameRecorder) NameUpdated(userID, environmentID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = map[string]string{}
	}
	r.names[environmentID] = name
}

func TestCreateGeneratesName(t *testing.T) {
	store := memory.New()
	log := logging.NewDiscard()
	provider := ai.NewLocalProvider()
	provider.Reply = func([]ai.Message, ai.CompletionOptions) (string, error) { return "Staging Database", nil }
	bg := system.NewBackground(log)
	rec := &nameRecorder{}

	svc := New(store, log)
	svc.now = func() time.Time { return time.Date(2024, 2, 3, 16, 0, 0, 0, time.UTC) }
	svc.AttachAI(ai.NewService(provider, log))
	svc.AttachNotifier(rec)
	svc.AttachRunner(bg)

	env, err := svc.Create(context.Background(), "u1", "", "DATABASE_URL=postgres://staging")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if env.Name != "Note - Feb 3, 2024 4:00 PM" {
		t.Fatalf("unexpected placeholder name %q", env.Name)
	}

	bg.Wait()
	stored, err := svc.Get(context.Background(), "u1", env.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "Staging Database" {
		t.Fatalf("expected generated name, got %q", stored.Name)
	}
	if rec.names[env.ID] != "Staging Database" {
		t.Fatalf("expected name_updated notification")
	}
}

func TestExplicitNameIsKept(t *testing.T) {
	store := memory.New()
	svc := New(store, logging.NewDiscard())
	env, err := svc.Create(context.Background(), "u1", "Prod", "KEY=1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if env.Name != "Prod" {
		t.Fatalf("name = %q", env.Name)
	}
}

func TestOwnershipAndValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, logging.NewDiscard())
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", "x", "  "); !svcerrors.Is(err, svcerrors.CodeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}

	env, err := svc.Create(ctx, "u1", "Dev", "A=1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(ctx, "u2", env.ID); !svcerrors.Is(err, svcerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, "u2", env.ID); !svcerrors.Is(err, svcerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", env.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "u1", env.ID); !svcerrors.Is(err, svcerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSortsByName(t *testing.T) {
	store := memory.New()
	svc := New(store, logging.NewDiscard())
	ctx := context.Background()
	for _, name := range []string{"zeta", "Alpha", "mid"} {
		if _, err := svc.Create(ctx, "u1", name, "content"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	envs, err := svc.List(ctx, "u1", "", "name")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(envs) != 3 || envs[0].Name != "Alpha" || envs[2].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", envs)
	}

	envs, err = svc.List(ctx, "u2", "", "")
	if err != nil || len(envs) != 0 {
		t.Fatalf("expected empty list for other user, got %v %v", envs, err)
	}
}
