// Package accesslog persists completed-request records to Postgres.
// Writes are fire-and-forget: handlers enqueue onto a bounded channel
// drained by a single writer goroutine, and a full queue drops the
// entry rather than blocking the response. A background purge enforces
// the 24h retention window, since Postgres has no native TTL.
package accesslog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blackroad/edge-gateway/internal/metrics"
	"github.com/blackroad/edge-gateway/internal/models"
)

const (
	queueSize     = 1024
	retention     = 24 * time.Hour
	purgeInterval = 10 * time.Minute
	writeTimeout  = 5 * time.Second
)

type Logger struct {
	pool    *pgxpool.Pool
	queue   chan *models.LogEntry
	metrics *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(databaseURL string, m *metrics.Metrics) (*Logger, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Logger{
		pool:    pool,
		queue:   make(chan *models.LogEntry, queueSize),
		metrics: m,
		cancel:  cancel,
	}

	l.wg.Add(2)
	go l.writeLoop(ctx)
	go l.purgeLoop(ctx)

	return l, nil
}

// Record enqueues an entry for the writer. It never blocks: when the
// queue is full the entry is counted as dropped and discarded. A nil
// Logger (no database configured) accepts and ignores everything.
func (l *Logger) Record(e *models.LogEntry) {
	if l == nil {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.metrics.AccessLogDropped()
	}
}

func (l *Logger) writeLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(e *models.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	query := `
        INSERT INTO access_logs (request_id, method, path, status_code, duration_ms, client_ip, agent_id, session_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := l.pool.Exec(ctx, query,
		e.RequestID,
		e.Method,
		e.Path,
		e.StatusCode,
		e.DurationMs,
		e.ClientIP,
		e.AgentID,
		e.SessionID,
		e.Timestamp,
	)
	if err != nil {
		log.Printf("access log write failed: %v", err)
	}
}

func (l *Logger) purgeLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.purge()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Logger) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tag, err := l.pool.Exec(ctx, `DELETE FROM access_logs WHERE created_at < NOW() - INTERVAL '24 hours'`)
	if err != nil {
		log.Printf("access log purge failed: %v", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Printf("purged %d expired access log entries", n)
	}
}

func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.cancel()
	l.wg.Wait()
	l.pool.Close()
}
