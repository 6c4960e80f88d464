package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/pairlink-go/internal/infra/confloader"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// ExpiryWarning is how close to expiry a loaded certificate is logged as
// a warning.
const ExpiryWarning = 14 * 24 * time.Hour

// DefaultDebounce lets a cert and key written back to back settle into
// one reload.
const DefaultDebounce = 500 * time.Millisecond

type keyPair struct {
	cert     *tls.Certificate
	notAfter time.Time
}

// Reloader serves a key pair from disk. A failed reload keeps the
// previous pair.
type Reloader struct {
	certFile string
	keyFile  string
	current  atomic.Pointer[keyPair]

	log      logger.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *confloader.Watcher
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reloader) { r.log = l }
}

// WithDebounce sets how long file events are coalesced before reloading.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) { r.debounce = d }
}

// NewReloader loads the key pair once and returns a reloader serving it.
func NewReloader(certFile, keyFile string, opts ...Option) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		log:      logger.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "tls")
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the key pair from disk and swaps it in.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	kp := &keyPair{cert: &cert}
	if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
		cert.Leaf = leaf
		kp.notAfter = leaf.NotAfter
	}
	r.current.Store(kp)

	r.log.Info("certificate loaded", "cert_file", r.certFile, "not_after", kp.notAfter)
	if !kp.notAfter.IsZero() && time.Until(kp.notAfter) < ExpiryWarning {
		r.log.Warn("certificate expires soon", "cert_file", r.certFile, "not_after", kp.notAfter)
	}
	return nil
}

// Watch reloads the pair whenever either file changes, until Close.
func (r *Reloader) Watch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return nil
	}
	w, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(r.log),
		confloader.WithDebounce(r.debounce))
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	for _, f := range []string{r.certFile, r.keyFile} {
		if err := w.Watch(f); err != nil {
			_ = w.Stop()
			return fmt.Errorf("tlsroots: watch %s: %w", f, err)
		}
	}
	w.OnChange(func(path string) {
		if err := r.Reload(); err != nil {
			r.log.Error("certificate reload failed", "file", path, "error", err)
		}
	})
	w.StartAsync()
	r.watcher = w
	return nil
}

// Close stops watching. Safe to call more than once.
func (r *Reloader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Stop()
	r.watcher = nil
	return err
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load().cert, nil
}

// ServerConfig returns a server config that always presents the latest
// certificate.
func (r *Reloader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// NotAfter returns the expiry of the certificate being served.
func (r *Reloader) NotAfter() time.Time {
	return r.current.Load().notAfter
}
