package telemetry

import (
	"fmt"

	"github.com/banshee-data/anchorsync/internal/db"
)

// Store persists events in the telemetry_events table.
type Store struct {
	db *db.DB
}

// NewStore creates a Store over an opened, migrated database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Emit inserts ev. Events are keyed by ID; re-emitting an ID is an error.
func (s *Store) Emit(ev Event) error {
	_, err := s.db.Exec(`
		INSERT INTO telemetry_events (
			event_id, kind, session_id, anchor_id, tracking_state, reason,
			active_anchors, initial_localization, forced, timestamp_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), ev.SessionID, ev.AnchorID, ev.TrackingState, ev.Reason,
		ev.ActiveAnchors, ev.InitialLocalization, ev.Forced, ev.TimestampMs,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry event %s: %w", ev.ID, err)
	}
	return nil
}

// List returns stored events in insertion order. An empty sessionID lists
// every session.
func (s *Store) List(sessionID string) ([]Event, error) {
	query := `
		SELECT event_id, kind, session_id, anchor_id, tracking_state, reason,
			active_anchors, initial_localization, forced, timestamp_ms
		FROM telemetry_events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(
			&ev.ID, &kind, &ev.SessionID, &ev.AnchorID, &ev.TrackingState, &ev.Reason,
			&ev.ActiveAnchors, &ev.InitialLocalization, &ev.Forced, &ev.TimestampMs,
		); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		ev.Kind = Kind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByKind returns the number of stored events per kind.
func (s *Store) CountByKind() (map[Kind]int, error) {
	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM telemetry_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count telemetry events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan telemetry count: %w", err)
		}
		counts[Kind(kind)] = n
	}
	return counts, rows.Err()
}
