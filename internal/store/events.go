package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// eventNamespace seeds the deterministic ids of externally sourced events.
var eventNamespace = uuid.MustParse("6f1c2f0e-5a4e-4f43-9a53-0c1b7d3e8a21")

const insertEventSQL = `INSERT INTO events (
    id, created_by, source, source_event_id, title, description, location,
    start_at, end_at, all_day, priority
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const selectEventsSQL = `SELECT id::text, created_by, source, COALESCE(source_event_id, ''), title,
    description, location, start_at, end_at, all_day, priority, created_at, updated_at
FROM events
WHERE created_by = $1 AND ($2 = '' OR source = $2)
ORDER BY start_at, id`

// eventRepo implements EventRepository.
type eventRepo struct {
	pool PgxPool
}

// ExternalEventID returns the stable id of a provider event for one user.
func ExternalEventID(userID string, source Source, sourceEventID string) string {
	key := userID + "\x00" + string(source) + "\x00" + sourceEventID
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

func (r *eventRepo) ReplaceForSource(ctx context.Context, userID string, source Source, events []Event) (int, error) {
	if !source.External() {
		return 0, ErrLocalSource
	}
	defer observeDB(ctx, "events.replace_for_source")()

	batch, err := prepareBatch(userID, source, events)
	if err != nil {
		return 0, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}

	// Serializes concurrent syncs of the same (user, provider) pair until commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(userID, source)); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("lock %s events: %w", source, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE created_by = $1 AND source = $2`, userID, string(source)); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("delete %s events: %w", source, err)
	}

	for _, ev := range batch {
		if _, err := tx.Exec(ctx, insertEventSQL,
			ev.ID, ev.CreatedBy, string(ev.Source), ev.SourceEventID, ev.Title, ev.Description, ev.Location,
			ev.Start, ev.End, ev.AllDay, string(ev.Priority),
		); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("insert %s event %s: %w", source, ev.SourceEventID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return len(batch), nil
}

// prepareBatch stamps ownership and ids and collapses duplicate provider ids, last one wins.
func prepareBatch(userID string, source Source, events []Event) ([]Event, error) {
	index := make(map[string]int, len(events))
	batch := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.SourceEventID == "" {
			return nil, fmt.Errorf("%s event %q has no source event id", source, ev.Title)
		}
		ev.CreatedBy = userID
		ev.Source = source
		ev.ID = ExternalEventID(userID, source, ev.SourceEventID)
		if ev.Priority == "" {
			ev.Priority = PriorityMedium
		}
		if i, ok := index[ev.SourceEventID]; ok {
			batch[i] = ev
			continue
		}
		index[ev.SourceEventID] = len(batch)
		batch = append(batch, ev)
	}
	return batch, nil
}

func lockKey(userID string, source Source) string {
	return "events:" + userID + ":" + string(source)
}

func (r *eventRepo) ListByUser(ctx context.Context, userID string, source Source) ([]Event, error) {
	defer observeDB(ctx, "events.list_by_user")()

	rows, err := r.pool.Query(ctx, selectEventsSQL, userID, string(source))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.CollectableRow) (Event, error) {
	var (
		ev       Event
		source   string
		priority string
		end      *time.Time
	)
	if err := row.Scan(
		&ev.ID, &ev.CreatedBy, &source, &ev.SourceEventID, &ev.Title,
		&ev.Description, &ev.Location, &ev.Start, &end, &ev.AllDay, &priority,
		&ev.CreatedAt, &ev.UpdatedAt,
	); err != nil {
		return Event{}, err
	}
	ev.Source = Source(source)
	ev.Priority = Priority(priority)
	ev.End = end
	return ev, nil
}
