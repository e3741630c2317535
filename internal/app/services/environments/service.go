// Package environments manages named content blocks with AI-generated names.
package environments

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/environment"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/app/system"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

// Notifier pushes name updates to the owner.
type Notifier interface {
	NameUpdated(userID, environmentID, name string)
}

// Runner executes fire-and-forget work.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Service manages environments.
type Service struct {
	store    storage.EnvironmentStore
	ai       *ai.Service
	notifier Notifier
	runner   Runner
	log      *logging.Logger
	now      func() time.Time
}

// New constructs an environment service.
func New(store storage.EnvironmentStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("environments")
	}
	return &Service{
		store:  store,
		ai:     ai.NewService(nil, log),
		runner: system.NewBackground(log),
		log:    log,
		now:    time.Now,
	}
}

// AttachAI enables generated names.
func (s *Service) AttachAI(gen *ai.Service) {
	if gen != nil {
		s.ai = gen
	}
}

// AttachNotifier sets the live update publisher.
func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

// AttachRunner sets the background task runner.
func (s *Service) AttachRunner(r Runner) {
	if r != nil {
		s.runner = r
	}
}

// List returns the user's environments.
func (s *Service) List(ctx context.Context, userID, search, sortBy string) ([]environment.Environment, error) {
	switch sortBy {
	case storage.SortNewest, storage.SortOldest, storage.SortName:
	default:
		sortBy = storage.SortNewest
	}
	envs, err := s.store.ListEnvironments(ctx, storage.EnvironmentQuery{
		UserID: userID,
		Search: strings.TrimSpace(search),
		SortBy: sortBy,
	})
	if err != nil {
		return nil, errors.Internal("Failed to fetch environments", err)
	}
	if envs == nil {
		envs = []environment.Environment{}
	}
	return envs, nil
}

// Create stores an environment. Without a name it gets a timestamp name and a
// generated one is filled in later.
func (s *Service) Create(ctx context.Context, userID, name, content string) (environment.Environment, error) {
	if strings.TrimSpace(content) == "" {
		return environment.Environment{}, errors.BadRequest("Content is required")
	}
	name = strings.TrimSpace(name)
	generate := name == ""
	if generate {
		name = ai.TimestampTitle(s.now())
	}

	created, err := s.store.CreateEnvironment(ctx, environment.Environment{
		UserID:    userID,
		Name:      name,
		Content:   content,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return environment.Environment{}, errors.Internal("Failed to create environment", err)
	}

	if generate && s.ai.Configured() {
		s.runner.Go("environment-name", func(ctx context.Context) error {
			return s.rename(ctx, created)
		})
	}
	return created, nil
}

func (s *Service) rename(ctx context.Context, env environment.Environment) error {
	name := s.ai.GenerateEnvironmentNameWithFallback(ctx, env.Content)
	current, err := s.store.GetEnvironment(ctx, env.ID)
	if err != nil {
		return err
	}
	if current.Name != env.Name || name == env.Name {
		return nil
	}
	current.Name = name
	if _, err := s.store.UpdateEnvironment(ctx, current); err != nil {
		return fmt.Errorf("update environment %s: %w", env.ID, err)
	}
	if s.notifier != nil {
		s.notifier.NameUpdated(env.UserID, env.ID, name)
	}
	return nil
}

// Get returns an environment owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (environment.Environment, error) {
	env, err := s.store.GetEnvironment(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return environment.Environment{}, errors.NotFound("Environment")
		}
		return environment.Environment{}, errors.Internal("Failed to fetch environment", err)
	}
	if env.UserID != userID {
		return environment.Environment{}, errors.Forbidden("You do not have access to this environment")
	}
	return env, nil
}

// Delete removes an environment owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteEnvironment(ctx, id); err != nil {
		return errors.Internal("Failed to delete environment", err)
	}
	return nil
}
