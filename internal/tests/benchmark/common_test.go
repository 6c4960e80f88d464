package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/pairing"
	"github.com/yndnr/pairlink-go/internal/protocol/simulated"
	"github.com/yndnr/pairlink-go/internal/storage/memory"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// SessionCounts defines the session populations for benchmarking.
var SessionCounts = []int{100, 1000, 5000}

// SmallSessionCounts for quick benchmarks.
var SmallSessionCounts = []int{10, 100}

func sessionName(i int) string {
	return fmt.Sprintf("bench-%06d", i)
}

// pairedCredentials returns credentials that open without pairing.
func pairedCredentials(b *testing.B, name string) *domain.Credentials {
	b.Helper()
	creds, err := domain.NewCredentials()
	if err != nil {
		b.Fatalf("NewCredentials: %v", err)
	}
	creds.Registered = true
	creds.Identity = &domain.Identity{ID: name + "@s.whatsapp.net", Name: name}
	return creds
}

// newManager builds a manager over the simulated network.
func newManager(b *testing.B, store service.CredentialStore) *service.Manager {
	b.Helper()
	cfg := service.DefaultManagerConfig()
	cfg.StartWait = 5 * time.Second
	m, err := service.NewManager(cfg, service.Dependencies{
		Store:    store,
		Dialer:   simulated.NewNetwork(),
		Renderer: pairing.NewRenderer(pairing.WithSize(128)),
		Logger:   logger.Discard(),
	})
	if err != nil {
		b.Fatalf("NewManager: %v", err)
	}
	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

// connectedManager returns a manager with count connected sessions.
func connectedManager(b *testing.B, count int) *service.Manager {
	b.Helper()
	ctx := context.Background()
	store := memory.NewCredentialStore()
	for i := 0; i < count; i++ {
		name := sessionName(i)
		if err := store.Save(ctx, name, pairedCredentials(b, name)); err != nil {
			b.Fatalf("Save: %v", err)
		}
	}

	m := newManager(b, store)
	for i := 0; i < count; i++ {
		if _, err := m.Start(ctx, sessionName(i)); err != nil {
			b.Fatalf("Start: %v", err)
		}
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	for i := 0; i < count; i++ {
		if _, err := m.WaitState(waitCtx, sessionName(i), domain.StateConnected); err != nil {
			b.Fatalf("WaitState %s: %v", sessionName(i), err)
		}
	}
	return m
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithSessionCounts runs a benchmark function with various session counts.
func runWithSessionCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("sessions_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}

// sizeLabel returns a human-readable size label.
func sizeLabel(size int) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%dMB", size/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%dKB", size/1024)
	default:
		return fmt.Sprintf("%dB", size)
	}
}
