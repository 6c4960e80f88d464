package service

import (
	"context"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// DefaultRecoveryWorkers is the default number of concurrent resumes.
const DefaultRecoveryWorkers = 8

// Bootstrapper resumes every session that has stored credentials when
// the process starts.
type Bootstrapper struct {
	manager *Manager
	store   CredentialStore
	pool    *ants.Pool
	log     logger.Logger
}

// RecoveryReport summarises one recovery run.
type RecoveryReport struct {
	// Resumed lists sessions started from stored credentials.
	Resumed []string

	// Failed maps names to the error that stopped them.
	Failed map[string]error
}

// NewBootstrapper creates a Bootstrapper with a bounded worker pool.
func NewBootstrapper(m *Manager, store CredentialStore, workers int, log logger.Logger) (*Bootstrapper, error) {
	if workers <= 0 {
		workers = DefaultRecoveryWorkers
	}
	if log == nil {
		log = logger.Default()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	return &Bootstrapper{
		manager: m,
		store:   store,
		pool:    pool,
		log:     log.With("component", "recovery"),
	}, nil
}

// Run lists stored credentials and starts a session for each name.
// Paired credentials reconnect; credentials left by an interrupted
// pairing start a new pairing cycle. Run returns once every name has
// been handled; it does not wait for the sessions to connect.
func (b *Bootstrapper) Run(ctx context.Context) (*RecoveryReport, error) {
	names, err := b.store.List(ctx)
	if err != nil {
		return nil, domain.ErrCredentialUnavailable.WithCause(err)
	}

	report := &RecoveryReport{Failed: make(map[string]error)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed[name] = err
			return
		}
		report.Resumed = append(report.Resumed, name)
	}

	for _, name := range names {
		name := name
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				record(name, ctx.Err())
				return
			}
			record(name, b.resume(ctx, name))
		})
		if err != nil {
			wg.Done()
			record(name, err)
		}
	}
	wg.Wait()

	sort.Strings(report.Resumed)
	b.log.Info("recovery finished",
		"resumed", len(report.Resumed),
		"failed", len(report.Failed),
	)
	return report, nil
}

// resume starts name. Credential problems surface later as an ERROR
// session, the same as for any start.
func (b *Bootstrapper) resume(ctx context.Context, name string) error {
	if err := domain.ValidateSessionName(name); err != nil {
		b.log.Warn("skipping stored credentials with invalid name", "session", name)
		return err
	}
	if _, err := b.manager.Start(ctx, name); err != nil {
		return err
	}
	b.log.Info("session resumed", "session", name)
	return nil
}

// Release frees the worker pool.
func (b *Bootstrapper) Release() {
	b.pool.Release()
}
