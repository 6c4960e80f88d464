package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: database closed")
)

// BadgerEngine wraps a Badger database with a GC loop.
type BadgerEngine struct {
	db     *badger.DB
	cfg    Config
	logger logger.Logger

	lastGC     atomic.Int64 // Unix milliseconds
	gcRewrites atomic.Uint64
	closed     atomic.Bool

	gcRuns prometheus.Counter

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewBadgerEngine opens the database described by cfg.
func NewBadgerEngine(cfg Config) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	cfg.applyDefaults()

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: cfg.Logger}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.SyncWrites = cfg.SyncWrites
	opts.NumMemtables = 2
	opts.NumLevelZeroTables = 5
	opts.NumLevelZeroTablesStall = 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "badger"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go e.gcLoop()

	e.logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval.String())
	return e, nil
}

// Get retrieves a copy of the value stored under key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes key. Removing a missing key is not an error.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Keys returns every key with the given prefix, prefix included.
func (e *BadgerEngine) Keys(ctx context.Context, prefix []byte) ([]string, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	var keys []string
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Backup writes a full backup of the database to w.
func (e *BadgerEngine) Backup(ctx context.Context, w io.Writer) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if _, err := e.db.Backup(w, 0); err != nil {
		return fmt.Errorf("badger: backup: %w", err)
	}
	return nil
}

// Restore loads a backup made by Backup. Existing keys are overwritten.
func (e *BadgerEngine) Restore(ctx context.Context, r io.Reader) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if err := e.db.Load(r, 16); err != nil {
		return fmt.Errorf("badger: restore: %w", err)
	}
	return nil
}

// GC rewrites value-log files until none crosses the discard threshold.
// It returns the number of files rewritten.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	if err := e.check(ctx); err != nil {
		return 0, err
	}
	start := time.Now()
	rewrites := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				break
			}
			return rewrites, fmt.Errorf("badger: gc: %w", err)
		}
		rewrites++
	}

	e.lastGC.Store(time.Now().UnixMilli())
	e.gcRewrites.Add(uint64(rewrites))
	if e.gcRuns != nil {
		e.gcRuns.Inc()
	}
	e.logger.Debug("gc completed", "rewrites", rewrites, "elapsed", time.Since(start).String())
	return rewrites, nil
}

// Stats returns database statistics. Keys counts records under prefix.
func (e *BadgerEngine) Stats(ctx context.Context, prefix []byte) (*Stats, error) {
	keys, err := e.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	lsm, vlog := e.db.Size()
	s := &Stats{
		Keys:         len(keys),
		LSMSize:      lsm,
		ValueLogSize: vlog,
		GCRewrites:   e.gcRewrites.Load(),
	}
	if ms := e.lastGC.Load(); ms > 0 {
		s.LastGC = time.UnixMilli(ms)
	}
	return s, nil
}

// Close stops the GC loop and closes the database.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down badger engine")
		e.closed.Store(true)
		close(e.stopCh)
		<-e.doneCh
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("badger: close db: %w", cerr)
		}
	})
	return err
}

// RegisterMetrics exposes database size and GC activity.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) error {
	lsm := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pairlink",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes.",
	}, func() float64 {
		l, _ := e.db.Size()
		return float64(l)
	})
	vlog := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pairlink",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes.",
	}, func() float64 {
		_, v := e.db.Size()
		return float64(v)
	})
	lastGC := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pairlink",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value-log GC run.",
	}, func() float64 {
		return float64(e.lastGC.Load()) / 1000
	})
	e.gcRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pairlink",
		Subsystem: "badger",
		Name:      "gc_runs_total",
		Help:      "Value-log GC runs.",
	})

	for _, c := range []prometheus.Collector{lsm, vlog, lastGC, e.gcRuns} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("badger: register metrics: %w", err)
		}
	}
	return nil
}

func (e *BadgerEngine) check(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)
	if e.cfg.InMemory {
		<-e.stopCh
		return
	}

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
