package pairing

import (
	"encoding/base64"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

const dataURLPrefix = "data:image/png;base64,"

// Renderer encodes pairing codes as QR images. It is stateless and safe
// for concurrent use.
type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSize sets the PNG edge length.
func WithSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.size = px
		}
	}
}

// WithRecoveryLevel sets the QR error correction level.
func WithRecoveryLevel(level qrcode.RecoveryLevel) Option {
	return func(r *Renderer) {
		r.level = level
	}
}

// NewRenderer creates a Renderer with medium error correction.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{size: DefaultSize, level: qrcode.Medium}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the code as a PNG data URL.
func (r *Renderer) Render(code string) (string, error) {
	png, err := r.PNG(code, r.size)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// PNG returns the code as PNG bytes of the given size.
func (r *Renderer) PNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, domain.ErrMissingArgument.WithDetails("pairing code is empty")
	}
	if size <= 0 {
		size = r.size
	}
	png, err := qrcode.Encode(code, r.level, size)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithCause(err)
	}
	return png, nil
}

// Terminal returns the code drawn with block characters for a terminal.
func (r *Renderer) Terminal(code string) (string, error) {
	if code == "" {
		return "", domain.ErrMissingArgument.WithDetails("pairing code is empty")
	}
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		return "", domain.ErrInvalidArgument.WithCause(err)
	}
	return q.ToSmallString(false), nil
}

// DecodeDataURL returns the PNG bytes of a data URL made by Render.
func DecodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, dataURLPrefix) {
		return nil, domain.ErrInvalidArgument.WithDetails("not a PNG data URL")
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, dataURLPrefix))
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithCause(err)
	}
	return png, nil
}
