package service

import (
	"context"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// CredentialStore persists per-session credentials across restarts.
type CredentialStore interface {
	// Load returns the stored credentials, or domain.ErrCredentialNotFound.
	Load(ctx context.Context, name string) (*domain.Credentials, error)

	// Save replaces the stored credentials for name.
	Save(ctx context.Context, name string, creds *domain.Credentials) error

	// Delete removes the credentials for name. Deleting a missing entry
	// is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names that have stored credentials.
	List(ctx context.Context) ([]string, error)
}

// PairingRenderer turns a pairing code into a scannable image.
type PairingRenderer interface {
	// Render returns the image as a data URL.
	Render(code string) (string, error)
}

// Recorder receives lifecycle observations for metrics.
type Recorder interface {
	Transition(from, to domain.State)
	PairingIssued()
	ReconnectScheduled(delay time.Duration)
	CredentialOp(op string, err error)
}

type nopRecorder struct{}

func (nopRecorder) Transition(domain.State, domain.State) {}
func (nopRecorder) PairingIssued() {}
func (nopRecorder) ReconnectScheduled(time.Duration) {}
func (nopRecorder) CredentialOp(string, error) {}
