// Package status aggregates the health of the services SeaNotes depends on.
package status

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/seanotes/seanotes/internal/cache"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

// DefaultCheckTimeout bounds a single checker.
const DefaultCheckTimeout = 10 * time.Second

const reportKey = "system-status"

// Report status values.
const (
	StatusOK     = "ok"
	StatusIssues = "issues_detected"
)

// ServiceStatus is the outcome of one dependency check.
type ServiceStatus struct {
	Name           string   `json:"name"`
	Configured     bool     `json:"configured"`
	Connected      bool     `json:"connected"`
	Required       bool     `json:"required"`
	Error          string   `json:"error,omitempty"`
	ConfigToReview []string `json:"configToReview,omitempty"`
	Description    string   `json:"description,omitempty"`
}

// Healthy reports whether the dependency is usable.
func (s ServiceStatus) Healthy() bool {
	return s.Configured && s.Connected
}

// Checker checks one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) ServiceStatus
}

// HealthState is the cached result of the last full check.
type HealthState struct {
	IsHealthy   bool            `json:"isHealthy"`
	LastChecked time.Time       `json:"lastChecked"`
	Services    []ServiceStatus `json:"services"`
}

// HostInfo describes the machine serving the request.
type HostInfo struct {
	Hostname          string  `json:"hostname"`
	OS                string  `json:"os"`
	Platform          string  `json:"platform"`
	Uptime            uint64  `json:"uptime"`
	CPUCount          int     `json:"cpuCount"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
}

// SystemInfo accompanies a report.
type SystemInfo struct {
	Environment     string    `json:"environment"`
	Timestamp       time.Time `json:"timestamp"`
	LastHealthCheck time.Time `json:"lastHealthCheck"`
	Host            HostInfo  `json:"host"`
}

// Report is the system status response body.
type Report struct {
	Services   []ServiceStatus `json:"services"`
	SystemInfo SystemInfo      `json:"systemInfo"`
	Status     string          `json:"status"`
}

// Options configures the aggregator.
type Options struct {
	Timeout     time.Duration
	Environment string
	Metrics     *metrics.Metrics
	Cache       *cache.Cache[Report]
}

// Service runs checkers and caches the result.
type Service struct {
	checkers    []Checker
	timeout     time.Duration
	environment string
	metrics     *metrics.Metrics
	cache       *cache.Cache[Report]
	log         *logging.Logger

	mu    sync.RWMutex
	state *HealthState
	group singleflight.Group

	host func(ctx context.Context) HostInfo
	now  func() time.Time
}

// New creates an aggregator over checkers.
func New(checkers []Checker, opts Options, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("status")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCheckTimeout
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	return &Service{
		checkers:    checkers,
		timeout:     opts.Timeout,
		environment: opts.Environment,
		metrics:     opts.Metrics,
		cache:       opts.Cache,
		log:         log,
		host:        collectHostInfo,
		now:         time.Now,
	}
}

// Check returns the cached health state, running every checker when nothing is
// cached or force is set. Concurrent forced checks share one run, which is
// detached from the caller's cancellation and bounded by the per-check timeout.
func (s *Service) Check(ctx context.Context, force bool) HealthState {
	if !force {
		if st, ok := s.State(); ok {
			return st
		}
	}
	shared := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do("check", func() (interface{}, error) {
		return s.run(shared), nil
	})
	return v.(HealthState)
}

// State returns the last health state, if any check has completed.
func (s *Service) State() (HealthState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return HealthState{}, false
	}
	return *s.state, true
}

// Refresh forces a check. It is the body of the scheduled status job.
func (s *Service) Refresh(ctx context.Context) error {
	st := s.Check(ctx, true)
	if !st.IsHealthy {
		s.log.WithField("services", unhealthyNames(st.Services)).Warn("Required services are unhealthy")
	}
	return ctx.Err()
}

// Report builds the system status response. Unless force is set a cached
// response is served when available.
func (s *Service) Report(ctx context.Context, force bool) Report {
	if !force && s.cache != nil {
		if r, ok := s.cache.Get(reportKey); ok {
			return r
		}
	}
	st := s.Check(ctx, force)
	r := Report{
		Services: st.Services,
		SystemInfo: SystemInfo{
			Environment:     s.environment,
			Timestamp:       s.now().UTC(),
			LastHealthCheck: st.LastChecked,
			Host:            s.host(ctx),
		},
		Status: StatusIssues,
	}
	if st.IsHealthy {
		r.Status = StatusOK
	}
	if !force && s.cache != nil {
		s.cache.Set(reportKey, r)
	}
	return r
}

func (s *Service) run(ctx context.Context) HealthState {
	results := make([]ServiceStatus, len(s.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.checkers {
		g.Go(func() error {
			results[i] = s.checkOne(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, st := range results {
		if st.Required && !st.Healthy() {
			healthy = false
		}
		s.metrics.SetServiceHealth(st.Name, st.Healthy())
	}

	state := HealthState{IsHealthy: healthy, LastChecked: s.now().UTC(), Services: results}
	s.mu.Lock()
	s.state = &state
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.Delete(reportKey)
	}

	s.log.WithFields(map[string]interface{}{
		"healthy":  healthy,
		"services": len(results),
	}).Debug("Health check completed")
	return state
}

// checkOne runs c with the per-check timeout. A checker that overruns or panics
// is reported as disconnected.
func (s *Service) checkOne(ctx context.Context, c Checker) (st ServiceStatus) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	required := false
	if r, ok := c.(interface{ Required() bool }); ok {
		required = r.Required()
	}
	failed := func(msg string) ServiceStatus {
		return ServiceStatus{Name: c.Name(), Configured: true, Required: required, Error: msg}
	}

	done := make(chan ServiceStatus, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed(fmt.Sprintf("check panicked: %v", r))
			}
		}()
		done <- c.Check(ctx)
	}()

	select {
	case st = <-done:
		return st
	case <-ctx.Done():
		return failed(fmt.Sprintf("check timed out after %s", s.timeout))
	}
}

func unhealthyNames(services []ServiceStatus) []string {
	var names []string
	for _, st := range services {
		if st.Required && !st.Healthy() {
			names = append(names, st.Name)
		}
	}
	return names
}

// collectHostInfo reads host facts. Fields that cannot be read are left zero.
func collectHostInfo(ctx context.Context) HostInfo {
	info := HostInfo{OS: runtime.GOOS, CPUCount: runtime.NumCPU()}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.Uptime = h.Uptime
		if h.OS != "" {
			info.OS = h.OS
		}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryUsedPercent = vm.UsedPercent
	}
	return info
}
