package store

import (
	"database/sql"
	"time"
)

// Event is one slide change.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Action    string    `json:"action"`
	Gesture   string    `json:"gesture,omitempty"`
	FromSlide int       `json:"from_slide"`
	ToSlide   int       `json:"to_slide"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRepository provides access to navigation events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts an event and sets its ID.
func (r *EventRepository) Record(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO navigation_events (session_id, source, action, gesture, from_slide, to_slide, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Source, e.Action, e.Gesture, e.FromSlide, e.ToSlide, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	e.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns a session's events oldest first.
func (r *EventRepository) ListBySession(sessionID string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, source, action, gesture, from_slide, to_slide, created_at
		 FROM navigation_events
		 WHERE session_id = ?
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Source, &e.Action, &e.Gesture, &e.FromSlide, &e.ToSlide, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByGesture returns how many events each gesture produced in a session.
func (r *EventRepository) CountByGesture(sessionID string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT gesture, COUNT(*) FROM navigation_events
		 WHERE session_id = ? AND gesture != ''
		 GROUP BY gesture`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var g string
		var n int
		if err := rows.Scan(&g, &n); err != nil {
			return nil, err
		}
		counts[g] = n
	}
	return counts, rows.Err()
}
