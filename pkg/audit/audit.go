// Package audit implements the Audit Log (C11): an async, buffered
// append-only writer plus convenience recorders and a filtered/paged query,
// adapted from wisbric-nightowl's internal/audit writer — simplified to a
// single tenant (no schema routing) and with fixed action-prefix recorders
// for this system's action vocabulary.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is a single audit log record.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   *string
	Actor        string
	ActorID      *string
	IPAddress    *string
	UserAgent    *string
	Details      *string
	OldValues    *string
	NewValues    *string
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async buffered audit log writer: Log never blocks the
// caller, entries are flushed in batches on a timer or when the batch fills.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{pool: pool, logger: logger, entries: make(chan Entry, bufferSize)}
}

// Start launches the background flush loop in its own goroutine and returns
// immediately; Close waits for that loop to finish its final flush.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting entries and waits for the final flush.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an entry. If the buffer is full the entry is dropped and a
// warning logged, rather than blocking the caller's request path.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", entry.Action, "resource_type", entry.ResourceType)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		_, err := w.pool.Exec(ctx, `
			INSERT INTO audit_logs (action, resource_type, resource_id, actor, actor_id, ip_address, user_agent, details, old_values, new_values)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, e.Action, e.ResourceType, e.ResourceID, e.Actor, e.ActorID, e.IPAddress, e.UserAgent, e.Details, e.OldValues, e.NewValues)
		if err != nil {
			w.logger.Error("writing audit log entry", "error", err, "action", e.Action, "resource_type", e.ResourceType)
		}
	}
}

// ClientIP extracts the client address from a request, preferring
// X-Forwarded-For and X-Real-IP over RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// strPtr is a small convenience for building optional Entry fields.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// recorder fields shared by every convenience method below.
func (w *Writer) record(action, resourceType string, resourceID *string, actor string, actorID *string, ip, ua string, details *string) {
	w.Log(Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		ActorID:      actorID,
		IPAddress:    strPtr(ip),
		UserAgent:    strPtr(ua),
		Details:      details,
	})
}

// RecordUserAction logs a "user.<verb>" entry.
func (w *Writer) RecordUserAction(verb, resourceID, actor string, actorID *string, ip, ua string, details *string) {
	w.record("user."+verb, "user", strPtr(resourceID), actor, actorID, ip, ua, details)
}

// RecordAPIKeyAction logs an "api_key.<verb>" entry.
func (w *Writer) RecordAPIKeyAction(verb, resourceID, actor string, actorID *string, ip, ua string, details *string) {
	w.record("api_key."+verb, "api_key", strPtr(resourceID), actor, actorID, ip, ua, details)
}

// RecordQuotaAction logs a "quota.<verb>" entry.
func (w *Writer) RecordQuotaAction(verb, resourceID, actor string, actorID *string, ip, ua string, details *string) {
	w.record("quota."+verb, "quota", strPtr(resourceID), actor, actorID, ip, ua, details)
}

// RecordSettingsAction logs a "settings.<verb>" entry.
func (w *Writer) RecordSettingsAction(verb, resourceID, actor string, actorID *string, ip, ua string, details *string) {
	w.record("settings."+verb, "settings", strPtr(resourceID), actor, actorID, ip, ua, details)
}

// RecordLogin logs "login.success" or "login.failed".
func (w *Writer) RecordLogin(success bool, actor, ip, ua string, details *string) {
	verb := "failed"
	if success {
		verb = "success"
	}
	w.record("login."+verb, "session", nil, actor, nil, ip, ua, details)
}

// Filter narrows a Query call. Action may be an exact action or a
// dotted-prefix ("user." matches "user.created", "user.updated", ...).
type Filter struct {
	Action       string
	ResourceType string
	Actor        string
	From, To     *time.Time
	Limit        int
	Offset       int
}

type LogRecord struct {
	ID           string
	Action       string
	ResourceType string
	ResourceID   *string
	Actor        string
	ActorID      *string
	IPAddress    *string
	UserAgent    *string
	Details      *string
	OldValues    *string
	NewValues    *string
	CreatedAt    time.Time
}

// Query supports filter-by-action (exact or dotted-prefix), resource,
// actor, and date range, with paging (spec §4.11).
func Query(ctx context.Context, pool *pgxpool.Pool, f Filter) ([]LogRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Action != "" {
		if strings.HasSuffix(f.Action, ".") {
			clauses = append(clauses, "action LIKE "+arg(f.Action+"%"))
		} else {
			clauses = append(clauses, "action = "+arg(f.Action))
		}
	}
	if f.ResourceType != "" {
		clauses = append(clauses, "resource_type = "+arg(f.ResourceType))
	}
	if f.Actor != "" {
		clauses = append(clauses, "actor = "+arg(f.Actor))
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= "+arg(*f.To))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, action, resource_type, resource_id, actor, actor_id, ip_address, user_agent, details, old_values, new_values, created_at
		FROM audit_logs WHERE %s ORDER BY created_at DESC LIMIT %s OFFSET %s
	`, strings.Join(clauses, " AND "), arg(limit), arg(f.Offset))

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var r LogRecord
		if err := rows.Scan(&r.ID, &r.Action, &r.ResourceType, &r.ResourceID, &r.Actor, &r.ActorID,
			&r.IPAddress, &r.UserAgent, &r.Details, &r.OldValues, &r.NewValues, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
