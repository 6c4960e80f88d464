package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// drainTimeout bounds how long a runner waits for a terminated
// connection to close its event channel.
const drainTimeout = 2 * time.Second

type commandKind int

const (
	commandLogout commandKind = iota
	commandRegenerate
	commandSender
)

type command struct {
	kind  commandKind
	reply chan commandResult
}

type commandResult struct {
	sender protocol.MessageSender
	err    error
}

var (
	errRunnerGone  = errors.New("session runner exited")
	errSuperseded  = errors.New("session owned by another runner")
	errNoCommitter = errors.New("session runner stopped")
	errRunnerBusy  = errors.New("session runner busy")
)

// runner is the single writer of one session. It owns the live
// connection, the credentials in use, the pairing expiry timer and the
// reconnect backoff. Everything it does happens on its own goroutine.
type runner struct {
	m         *Manager
	name      string
	attemptID string
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan command
	redial chan struct{}
	done   chan struct{}

	conn   protocol.Conn
	events <-chan domain.Event
	creds  *domain.Credentials
	policy *ReconnectPolicy

	pairing  *time.Timer
	pairingC <-chan time.Time

	// dialMu guards the in-flight dial. Logout aborts it from another
	// goroutine and blocks later dials.
	dialMu     sync.Mutex
	dialCancel context.CancelFunc
	stopping   bool

	exit bool
}

func newRunner(m *Manager, name, attemptID string) *runner {
	ctx, cancel := context.WithCancel(m.baseCtx)
	return &runner{
		m:         m,
		name:      name,
		attemptID: attemptID,
		log:       m.log.With("session", name, "attempt_id", attemptID),
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan command, 4),
		redial:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		policy:    NewReconnectPolicy(m.cfg.Reconnect),
	}
}

func (r *runner) run() {
	defer r.m.wg.Done()
	defer close(r.done)
	defer r.m.runners.RemoveCb(r.name, func(_ string, v *runner, exists bool) bool {
		return exists && v == r
	})
	defer r.cancel()

	r.connect()
	for !r.exit {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case ev, ok := <-r.events:
			if !ok {
				r.events = nil
				r.onClose(domain.CloseReason{Kind: domain.CloseConnectionLost, Message: "event stream ended"})
				continue
			}
			r.handle(ev)
		case <-r.pairingC:
			r.pairing, r.pairingC = nil, nil
			r.onPairingExpired()
		case <-r.redial:
			if r.conn == nil {
				r.connect()
			}
		case cmd := <-r.cmds:
			r.handleCommand(cmd)
		}
	}
}

// send delivers a command and waits for its reply.
func (r *runner) send(ctx context.Context, kind commandKind, timeout time.Duration) (commandResult, error) {
	reply, err := r.enqueue(ctx, kind)
	if err != nil {
		return commandResult{}, err
	}
	return r.await(ctx, reply, timeout)
}

// enqueue hands a command to the runner. Once it returns nil the runner
// will handle the command before it exits.
func (r *runner) enqueue(ctx context.Context, kind commandKind) (chan commandResult, error) {
	reply := make(chan commandResult, 1)
	select {
	case r.cmds <- command{kind: kind, reply: reply}:
		return reply, nil
	case <-r.done:
		return nil, errRunnerGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *runner) await(ctx context.Context, reply chan commandResult, timeout time.Duration) (commandResult, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-reply:
		return res, res.err
	case <-r.done:
		select {
		case res := <-reply:
			return res, res.err
		default:
			return commandResult{}, errRunnerGone
		}
	case <-t.C:
		return commandResult{}, errRunnerBusy
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// interruptDial aborts an in-flight dial and refuses new ones. The runner
// then reaches its command queue without opening a connection.
func (r *runner) interruptDial() {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()
	r.stopping = true
	if r.dialCancel != nil {
		r.dialCancel()
	}
}

func (r *runner) stopRequested() bool {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()
	return r.stopping
}

// dialContext scopes one dial. The returned func must be called once the
// dial returns.
func (r *runner) dialContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(r.ctx)
	r.dialMu.Lock()
	if r.stopping {
		cancel()
	}
	r.dialCancel = cancel
	r.dialMu.Unlock()
	return ctx, func() {
		r.dialMu.Lock()
		r.dialCancel = nil
		r.dialMu.Unlock()
		cancel()
	}
}

// post delivers a command without waiting. Dropped if the queue is full.
func (r *runner) post(kind commandKind) {
	select {
	case r.cmds <- command{kind: kind}:
	default:
	}
}

// kick wakes the runner for a scheduled reconnect.
func (r *runner) kick() {
	select {
	case r.redial <- struct{}{}:
	default:
	}
}

func (r *runner) handleCommand(cmd command) {
	var res commandResult
	switch cmd.kind {
	case commandLogout:
		r.logout()
	case commandRegenerate:
		r.onPairingExpired()
	case commandSender:
		res.sender, res.err = r.sender()
	}
	if cmd.reply != nil {
		cmd.reply <- res
	}
}

// ============================================================================
// Connection attempts
// ============================================================================

func (r *runner) connect() {
	if r.ctx.Err() != nil || r.stopRequested() {
		return
	}

	if r.creds == nil {
		creds, err := r.loadCredentials()
		if err != nil {
			r.log.Error("credentials unavailable", "error", err)
			r.finish(domain.StateError, err)
			return
		}
		r.creds = creds
	}

	if err := r.transition(domain.StateConnecting, nil); err != nil {
		r.abandon(err)
		return
	}

	dialCtx, release := r.dialContext()
	conn, err := r.m.dialer.Dial(dialCtx, r.name, r.creds.Clone())
	release()
	if err != nil {
		if r.ctx.Err() != nil || r.stopRequested() {
			return
		}
		r.log.Warn("dial failed", "error", err)
		kind := domain.CloseConnectionLost
		if errors.Is(err, domain.ErrConnectionTerminal) {
			kind = domain.CloseInvalidCredentials
		}
		r.onClose(domain.CloseReason{Kind: kind, Message: err.Error()})
		return
	}
	r.conn, r.events = conn, conn.Events()
}

func (r *runner) loadCredentials() (*domain.Credentials, error) {
	creds, err := r.m.store.Load(r.ctx, r.name)
	switch {
	case err == nil:
		r.m.recorder.CredentialOp("load", nil)
		return creds, nil
	case errors.Is(err, domain.ErrCredentialNotFound):
		r.m.recorder.CredentialOp("load", nil)
	default:
		r.m.recorder.CredentialOp("load", err)
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, domain.ErrCredentialUnavailable.WithCause(err)
	}

	creds, err = domain.NewCredentials()
	if err != nil {
		return nil, err
	}
	if err := r.m.store.Save(r.ctx, r.name, creds); err != nil {
		r.m.recorder.CredentialOp("save", err)
		return nil, domain.ErrCredentialUnavailable.WithCause(err)
	}
	r.m.recorder.CredentialOp("save", nil)
	r.log.Info("minted credentials for first pairing", "fingerprint", creds.Fingerprint())
	return creds, nil
}

// dropConn terminates the current connection and waits for its event
// channel to close, so no event of the old attempt is read later.
func (r *runner) dropConn() {
	if r.conn == nil {
		return
	}
	r.conn.Terminate()
	if r.events != nil {
		t := time.NewTimer(drainTimeout)
		defer t.Stop()
	drain:
		for {
			select {
			case _, ok := <-r.events:
				if !ok {
					break drain
				}
			case <-t.C:
				r.log.Warn("connection did not close its event stream")
				break drain
			}
		}
	}
	r.conn, r.events = nil, nil
}

func (r *runner) sender() (protocol.MessageSender, error) {
	s, ok := r.m.registry.Get(r.name)
	if !ok || s.State != domain.StateConnected || r.conn == nil {
		return nil, domain.ErrSessionNotConnected.WithDetails(r.name)
	}
	sender, ok := r.conn.(protocol.MessageSender)
	if !ok {
		return nil, domain.ErrSendUnsupported
	}
	return sender, nil
}

// ============================================================================
// Events
// ============================================================================

func (r *runner) handle(ev domain.Event) {
	r.log.Debug("connection event", "event", domain.EventKind(ev))
	switch e := ev.(type) {
	case domain.EventPairingCode:
		r.onPairingCode(e.Code)
	case domain.EventOpen:
		r.onOpen(e.Identity)
	case domain.EventCredentials:
		r.onCredentials(e.Credentials)
	case domain.EventClose:
		r.onClose(e.Reason)
	}
}

func (r *runner) onPairingCode(code string) {
	cur, ok := r.m.registry.Get(r.name)
	if !ok {
		r.abandon(domain.ErrSessionNotFound)
		return
	}
	if cur.PairingAttempt >= r.m.cfg.MaxPairingAttempts {
		r.abandonPairing()
		return
	}

	now := r.m.now()
	artifact := &domain.PairingArtifact{
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.m.cfg.PairingTimeout),
	}
	if r.m.renderer != nil {
		img, err := r.m.renderer.Render(code)
		if err != nil {
			r.log.Warn("pairing code render failed", "error", err)
		}
		artifact.Image = img
	}

	err := r.transition(domain.StateAwaitingScan, func(s *domain.Session) {
		s.Pairing = artifact
		s.PairingAttempt++
	})
	if err != nil {
		r.abandon(err)
		return
	}
	r.armPairingTimer(r.m.cfg.PairingTimeout)
	r.m.recorder.PairingIssued()
}

func (r *runner) onOpen(id domain.Identity) {
	r.stopPairingTimer()
	r.policy.Reset()

	err := r.transition(domain.StateConnected, func(s *domain.Session) {
		s.Identity = &id
		s.ReconnectAttempt = 0
		s.PairingAttempt = 0
		s.LastError = nil
	})
	if err != nil {
		r.abandon(err)
		return
	}
	r.log.Info("session connected", "identity", id.ID)
}

func (r *runner) onCredentials(c *domain.Credentials) {
	if c == nil {
		return
	}
	r.creds = c.Clone()
	if err := r.m.store.Save(r.ctx, r.name, c); err != nil {
		r.m.recorder.CredentialOp("save", err)
		r.log.Error("persist credentials failed", "error", err)
		return
	}
	r.m.recorder.CredentialOp("save", nil)
}

func (r *runner) onClose(reason domain.CloseReason) {
	r.stopPairingTimer()
	r.dropConn()

	switch reason.Classify() {
	case domain.CloseTerminal:
		r.log.Warn("session closed permanently", "reason", reason.String())
		r.purge()
		r.finish(domain.StateDisconnected, reason.Err())
	case domain.CloseFatal:
		r.log.Error("session stopped", "reason", reason.String())
		r.finish(domain.StateError, reason.Err())
	default:
		r.scheduleReconnect(reason)
	}
}

func (r *runner) scheduleReconnect(reason domain.CloseReason) {
	var delay time.Duration
	if !reason.Immediate() {
		delay = r.policy.Next()
	}

	err := r.transition(domain.StateReconnecting, func(s *domain.Session) {
		if reason.Immediate() {
			return
		}
		s.ReconnectAttempt++
		s.LastError = domain.NewErrorInfo(reason.Err())
	})
	if err != nil {
		r.abandon(err)
		return
	}

	if !r.m.scheduler.Schedule(r.name, delay, r.kick) {
		return
	}
	r.m.recorder.ReconnectScheduled(delay)
	r.log.Info("reconnect scheduled", "reason", reason.String(), "delay", delay.String())
}

// ============================================================================
// Pairing expiry
// ============================================================================

func (r *runner) armPairingTimer(d time.Duration) {
	r.stopPairingTimer()
	r.pairing = time.NewTimer(d)
	r.pairingC = r.pairing.C
}

func (r *runner) stopPairingTimer() {
	if r.pairing != nil {
		r.pairing.Stop()
	}
	r.pairing, r.pairingC = nil, nil
}

// onPairingExpired replaces an artifact nobody scanned with a fresh
// connection attempt, or gives up after too many.
func (r *runner) onPairingExpired() {
	s, ok := r.m.registry.Get(r.name)
	if !ok || s.AttemptID != r.attemptID {
		r.abandon(errSuperseded)
		return
	}
	now := r.m.now()
	if !s.PairingExpired(now) {
		if s.State == domain.StateAwaitingScan && r.pairingC == nil {
			r.armPairingTimer(s.Pairing.ExpiresAt.Sub(now))
		}
		return
	}
	r.stopPairingTimer()

	if s.PairingAttempt >= r.m.cfg.MaxPairingAttempts {
		r.abandonPairing()
		return
	}

	r.log.Info("pairing code expired, requesting a new one", "pairing_attempt", s.PairingAttempt)
	r.dropConn()
	r.connect()
}

func (r *runner) abandonPairing() {
	r.log.Warn("pairing abandoned", "max_attempts", r.m.cfg.MaxPairingAttempts)
	r.dropConn()
	if r.creds == nil || !r.creds.Registered {
		r.purge()
	}
	r.finish(domain.StateDisconnected, domain.ErrPairingAbandoned)
}

// ============================================================================
// Exit paths
// ============================================================================

func (r *runner) logout() {
	r.stopPairingTimer()
	r.m.scheduler.Cancel(r.name)

	if r.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.m.cfg.LogoutTimeout)
		if err := r.conn.Logout(ctx); err != nil {
			r.log.Warn("remote logout failed", "error", err)
		}
		cancel()
	}
	r.dropConn()
	r.purge()
	r.finish(domain.StateDisconnected, nil)
}

// purge deletes stored credentials. It outlives a cancelled runner
// context so a logout during shutdown still completes.
func (r *runner) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), r.m.cfg.LogoutTimeout)
	defer cancel()

	err := r.m.store.Delete(ctx, r.name)
	r.m.recorder.CredentialOp("delete", err)
	if err != nil {
		r.log.Error("purge credentials failed", "error", err)
		return
	}
	r.creds = nil
}

// finish commits a terminal state and stops the runner. DISCONNECTED
// sessions are evicted; ERROR sessions stay visible for diagnosis.
func (r *runner) finish(state domain.State, cause error) {
	r.stopPairingTimer()
	r.m.scheduler.Cancel(r.name)
	r.dropConn()

	err := r.transition(state, func(s *domain.Session) {
		s.LastError = domain.NewErrorInfo(cause)
	})
	if err != nil {
		r.log.Debug("final transition skipped", "error", err)
	}

	if state == domain.StateDisconnected {
		r.m.registry.RemoveIf(r.name, func(s *domain.Session) bool {
			return s.AttemptID == r.attemptID
		})
	}
	r.exit = true
}

// abandon stops the runner without touching the registry. Used when the
// entry was removed or taken over.
func (r *runner) abandon(err error) {
	r.log.Debug("runner stopping", "error", err)
	r.stopPairingTimer()
	r.dropConn()
	r.exit = true
}

// shutdown runs when the manager closes. Credentials are kept.
func (r *runner) shutdown() {
	r.stopPairingTimer()
	r.dropConn()
	r.exit = true
}

// transition commits to if this runner still owns the session.
func (r *runner) transition(to domain.State, mutate func(*domain.Session)) error {
	if r.exit {
		return errNoCommitter
	}
	var from domain.State
	_, err := r.m.registry.Update(r.name, func(s *domain.Session) (*domain.Session, error) {
		if s.AttemptID != r.attemptID {
			return nil, errSuperseded
		}
		from = s.State
		next, err := s.Transition(to, r.m.now())
		if err != nil {
			return nil, err
		}
		if mutate != nil {
			mutate(next)
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	r.m.recorder.Transition(from, to)
	return nil
}
