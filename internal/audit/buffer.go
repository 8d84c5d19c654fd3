package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/store"
)

// DecisionBuffer collects decisions in memory and periodically flushes them
// to the _decisions table in a batch insert.
type DecisionBuffer struct {
	mu        sync.Mutex
	decisions []Decision
	store     *store.Store
	maxSize   int
	ticker    *time.Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

// NewDecisionBuffer creates a buffer that flushes on a timer or when full.
func NewDecisionBuffer(s *store.Store, maxSize int, flushIntervalMs int) *DecisionBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 500
	}
	db := &DecisionBuffer{
		store:   s,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	db.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go db.run()
	return db
}

func (b *DecisionBuffer) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush()
		}
	}
}

// Record adds a decision to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (b *DecisionBuffer) Record(d Decision) {
	b.mu.Lock()
	b.decisions = append(b.decisions, d)
	shouldFlush := len(b.decisions) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		go b.Flush()
	}
}

// Pending returns the number of decisions waiting to be flushed.
func (b *DecisionBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.decisions)
}

// Flush writes all buffered decisions to the database in a single batch insert.
func (b *DecisionBuffer) Flush() {
	b.mu.Lock()
	if len(b.decisions) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.decisions
	b.decisions = nil
	b.mu.Unlock()

	ctx := context.Background()
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		logging.Error("Decision buffer begin tx", zap.Error(err), zap.Int("dropped", len(batch)))
		return
	}

	cols := []string{"kind", "user_id", "role", "subject", "target", "allowed", "reason", "created_at"}
	pb := b.store.Dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, d := range batch {
		ph := []string{
			pb.Add(d.Kind), pb.Add(nullable(d.UserID)), pb.Add(nullable(d.Role)),
			pb.Add(d.Subject), pb.Add(d.Target), pb.Add(d.Allowed),
			pb.Add(nullable(d.Reason)), pb.Add(d.CreatedAt.Unix()),
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _decisions (%s) VALUES %s", strings.Join(cols, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		tx.Rollback()
		logging.Error("Decision buffer insert", zap.Error(err), zap.Int("dropped", len(batch)))
		return
	}

	if err := tx.Commit(); err != nil {
		logging.Error("Decision buffer commit", zap.Error(err), zap.Int("dropped", len(batch)))
	}
}

// Stop halts the background ticker and flushes remaining decisions.
func (b *DecisionBuffer) Stop() {
	b.stopOnce.Do(func() {
		b.ticker.Stop()
		close(b.done)
		b.Flush()
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
