package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per presentation run.
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			deck TEXT NOT NULL DEFAULT '',
			slide_count INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Slide changes within a session, whatever triggered them.
		`CREATE TABLE IF NOT EXISTS navigation_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			action TEXT NOT NULL,
			gesture TEXT NOT NULL DEFAULT '',
			from_slide INTEGER NOT NULL,
			to_slide INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Plugin actions run after a navigation action.
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			nav_action TEXT NOT NULL CHECK(nav_action IN ('next', 'previous', 'first', 'last')),
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_navigation_events_session_id ON navigation_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_nav_action ON bindings(nav_action)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
