package service

import (
	"context"
	"errors"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/registry"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// ManagerConfig holds lifecycle timing.
type ManagerConfig struct {
	// PairingTimeout is how long one pairing artifact stays valid.
	PairingTimeout time.Duration

	// MaxPairingAttempts is how many artifacts may expire unscanned
	// before the session is abandoned.
	MaxPairingAttempts int

	// StartWait is the default time StartSession waits for a usable state.
	StartWait time.Duration

	// LogoutTimeout bounds the remote logout call.
	LogoutTimeout time.Duration

	Reconnect ReconnectConfig
}

// DefaultManagerConfig returns the default lifecycle timing.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PairingTimeout:     15 * time.Second,
		MaxPairingAttempts: 5,
		StartWait:          15 * time.Second,
		LogoutTimeout:      5 * time.Second,
		Reconnect:          DefaultReconnectConfig(),
	}
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Store    CredentialStore
	Dialer   protocol.Dialer
	Renderer PairingRenderer
	Recorder Recorder
	Logger   logger.Logger
}

// Manager owns every session of the process.
type Manager struct {
	cfg       ManagerConfig
	store     CredentialStore
	dialer    protocol.Dialer
	renderer  PairingRenderer
	recorder  Recorder
	log       logger.Logger
	registry  *registry.Registry
	scheduler *Scheduler
	runners   cmap.ConcurrentMap[string, *runner]

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	now func() time.Time
}

// NewManager creates a Manager. Store and Dialer are required.
func NewManager(cfg ManagerConfig, deps Dependencies) (*Manager, error) {
	if deps.Store == nil {
		return nil, domain.ErrMissingArgument.WithDetails("credential store is required")
	}
	if deps.Dialer == nil {
		return nil, domain.ErrMissingArgument.WithDetails("protocol dialer is required")
	}

	def := DefaultManagerConfig()
	if cfg.PairingTimeout <= 0 {
		cfg.PairingTimeout = def.PairingTimeout
	}
	if cfg.MaxPairingAttempts <= 0 {
		cfg.MaxPairingAttempts = def.MaxPairingAttempts
	}
	if cfg.StartWait < 0 {
		cfg.StartWait = 0
	}
	if cfg.LogoutTimeout <= 0 {
		cfg.LogoutTimeout = def.LogoutTimeout
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		store:     deps.Store,
		dialer:    deps.Dialer,
		renderer:  deps.Renderer,
		recorder:  deps.Recorder,
		log:       deps.Logger.With("component", "session-manager"),
		registry:  registry.New(),
		scheduler: NewScheduler(),
		runners:   cmap.New[*runner](),
		baseCtx:   ctx,
		cancel:    cancel,
		now:       time.Now,
	}, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() ManagerConfig {
	return m.cfg
}

// CountByState returns the number of sessions per state.
func (m *Manager) CountByState() map[domain.State]int {
	return m.registry.CountByState()
}

// Healthy reports ErrManagerClosed once Close has been called.
func (m *Manager) Healthy() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return domain.ErrManagerClosed
	}
	return nil
}

// PendingReconnects returns the number of scheduled reconnects.
func (m *Manager) PendingReconnects() int {
	return m.scheduler.Len()
}

// ============================================================================
// Start
// ============================================================================

// Start registers name and launches its runner unless a live session
// already exists. It never blocks on IO.
func (m *Manager) Start(_ context.Context, name string) (*domain.Session, error) {
	s, _, err := m.start(name)
	if err != nil {
		return nil, err
	}
	return m.view(s), nil
}

func (m *Manager) start(name string) (*domain.Session, bool, error) {
	if err := domain.ValidateSessionName(name); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, domain.ErrManagerClosed
	}

	attemptID, err := domain.GenerateAttemptID()
	if err != nil {
		return nil, false, err
	}
	fresh := domain.NewSession(name, m.now())
	fresh.AttemptID = attemptID

	cur, created := m.registry.CreateIfAbsent(fresh)
	if !created {
		if cur.PairingExpired(m.now()) {
			m.nudge(name)
		}
		return cur, false, nil
	}

	r := newRunner(m, name, attemptID)
	m.runners.Set(name, r)
	m.wg.Add(1)
	go r.run()

	m.log.Info("session started", "session", name, "attempt_id", attemptID)
	return cur, true, nil
}

// StartSessionRequest contains parameters for StartSession.
type StartSessionRequest struct {
	Name string

	// Wait bounds how long to wait for a usable state. Zero uses the
	// configured default; negative returns immediately.
	Wait time.Duration
}

// StartSessionResponse contains the result of StartSession.
type StartSessionResponse struct {
	Session *domain.Session

	// Created is true when this call launched the session.
	Created bool

	// Ready is true when the session is usable (connected or showing a
	// fresh pairing artifact) or has reached a terminal state. False means
	// the wait ran out while the session was still progressing.
	Ready bool
}

// StartSession starts name and waits until it is usable, terminal or the
// wait runs out.
func (m *Manager) StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error) {
	sess, created, err := m.start(req.Name)
	if err != nil {
		return nil, err
	}

	wait := req.Wait
	if wait == 0 {
		wait = m.cfg.StartWait
	}
	if wait > 0 && !m.ready(sess) {
		wctx, cancel := context.WithTimeout(ctx, wait)
		s, err := m.Wait(wctx, req.Name, m.ready)
		cancel()
		if err != nil && !errors.Is(err, domain.ErrWaitTimeout) {
			return nil, err
		}
		if s != nil {
			sess = s
		}
	}

	return &StartSessionResponse{
		Session: m.view(sess),
		Created: created,
		Ready:   m.ready(sess),
	}, nil
}

func (m *Manager) ready(s *domain.Session) bool {
	return s.Usable(m.now()) || s.State.IsTerminal()
}

// ============================================================================
// Status, List and Wait
// ============================================================================

// Status returns the current snapshot of name. An expired pairing
// artifact is never returned; the runner is asked to issue a fresh one.
func (m *Manager) Status(_ context.Context, name string) (*domain.Session, error) {
	if err := domain.ValidateSessionName(name); err != nil {
		return nil, err
	}
	s, ok := m.registry.Get(name)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(name)
	}
	if s.PairingExpired(m.now()) {
		m.nudge(name)
	}
	return m.view(s), nil
}

// List returns every session, sorted by name.
func (m *Manager) List(_ context.Context) []*domain.Session {
	all := m.registry.List()
	now := m.now()
	for i, s := range all {
		if s.PairingExpired(now) {
			all[i] = s.WithoutPairing()
		}
	}
	return all
}

// Wait blocks until pred accepts the snapshot of name or ctx ends.
// A session removed while waiting is reported as DISCONNECTED. On
// timeout the last snapshot is returned with domain.ErrWaitTimeout.
func (m *Manager) Wait(ctx context.Context, name string, pred func(*domain.Session) bool) (*domain.Session, error) {
	var last *domain.Session
	for {
		s, changed, ok := m.registry.Watch(name)
		if !ok {
			if last == nil {
				return nil, domain.ErrSessionNotFound.WithDetails(name)
			}
			return removedView(last, m.now()), nil
		}
		last = s
		if pred(s) {
			return m.view(s), nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return m.view(s), domain.ErrWaitTimeout.WithCause(ctx.Err())
		}
	}
}

// WaitChange blocks until the version of name differs from known.
func (m *Manager) WaitChange(ctx context.Context, name string, known uint64) (*domain.Session, error) {
	return m.Wait(ctx, name, func(s *domain.Session) bool { return s.Version != known })
}

// WaitState blocks until name reaches state or a terminal state.
func (m *Manager) WaitState(ctx context.Context, name string, state domain.State) (*domain.Session, error) {
	return m.Wait(ctx, name, func(s *domain.Session) bool {
		return s.State == state || s.State.IsTerminal()
	})
}

func removedView(last *domain.Session, now time.Time) *domain.Session {
	if last.State.IsTerminal() {
		return last
	}
	gone, err := last.Transition(domain.StateDisconnected, now)
	if err != nil {
		return last
	}
	return gone
}

// view hides an expired pairing artifact.
func (m *Manager) view(s *domain.Session) *domain.Session {
	if s.PairingExpired(m.now()) {
		return s.WithoutPairing()
	}
	return s
}

// ============================================================================
// Logout
// ============================================================================

// LogoutResponse contains the result of Logout.
type LogoutResponse struct {
	Name string

	// Existed is true when a session was registered under the name.
	Existed bool
}

// Logout unlinks name from the remote end, removes its stored credentials
// and evicts it. Logging out an unknown name only purges credentials.
func (m *Manager) Logout(ctx context.Context, name string) (*LogoutResponse, error) {
	if err := domain.ValidateSessionName(name); err != nil {
		return nil, err
	}

	if r, ok := m.runners.Get(name); ok {
		reply, err := r.enqueue(ctx, commandLogout)
		if err == nil {
			r.interruptDial()
			_, err = r.await(ctx, reply, m.cfg.LogoutTimeout*2)
		}
		switch {
		case err == nil:
			m.log.Info("session logged out", "session", name)
			return &LogoutResponse{Name: name, Existed: true}, nil
		case errors.Is(err, errRunnerBusy):
			// Queued; the runner purges and evicts before it exits.
			m.log.Warn("session logout still in progress", "session", name)
			return &LogoutResponse{Name: name, Existed: true}, nil
		case errors.Is(err, errRunnerGone):
			// Runner already stopped; purge below.
		default:
			return nil, err
		}
	}

	_, existed := m.registry.Remove(name)
	if err := m.store.Delete(ctx, name); err != nil {
		m.recorder.CredentialOp("delete", err)
		return nil, domain.ErrCredentialUnavailable.WithCause(err)
	}
	m.recorder.CredentialOp("delete", nil)
	m.log.Info("session credentials purged", "session", name, "existed", existed)
	return &LogoutResponse{Name: name, Existed: existed}, nil
}

// ============================================================================
// Send
// ============================================================================

// SendTextRequest contains parameters for SendText.
type SendTextRequest struct {
	Name string
	To   string
	Text string
}

// SendTextResponse contains the result of SendText.
type SendTextResponse struct {
	MessageID string
}

// SendText sends a text message through a connected session.
func (m *Manager) SendText(ctx context.Context, req *SendTextRequest) (*SendTextResponse, error) {
	if err := domain.ValidateSessionName(req.Name); err != nil {
		return nil, err
	}
	to := domain.NormalizeRecipient(req.To)
	if to == "" {
		return nil, domain.ErrMissingArgument.WithDetails("recipient is required")
	}
	if req.Text == "" {
		return nil, domain.ErrMissingArgument.WithDetails("text is required")
	}

	s, ok := m.registry.Get(req.Name)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(req.Name)
	}
	if s.State != domain.StateConnected {
		return nil, domain.ErrSessionNotConnected.WithDetails("session is " + string(s.State))
	}

	r, ok := m.runners.Get(req.Name)
	if !ok {
		return nil, domain.ErrSessionNotConnected.WithDetails(req.Name)
	}
	res, err := r.send(ctx, commandSender, m.cfg.LogoutTimeout)
	if err != nil {
		switch {
		case errors.Is(err, errRunnerGone):
			return nil, domain.ErrSessionNotConnected.WithDetails(req.Name)
		case errors.Is(err, errRunnerBusy):
			return nil, domain.ErrServiceUnavailable.WithDetails("session runner busy")
		}
		return nil, err
	}

	id, err := res.sender.SendText(ctx, to, req.Text)
	if err != nil {
		return nil, domain.ErrConnectionTransient.WithCause(err)
	}
	return &SendTextResponse{MessageID: id}, nil
}

// ============================================================================
// Shutdown
// ============================================================================

// Close stops every runner and cancels every scheduled reconnect.
// Connections are terminated; stored credentials are kept so sessions
// resume on the next start.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.scheduler.CancelAll()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("session manager closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nudge asks the runner of name to replace an expired artifact.
func (m *Manager) nudge(name string) {
	if r, ok := m.runners.Get(name); ok {
		r.post(commandRegenerate)
	}
}
