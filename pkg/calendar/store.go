package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultCalendarName is the calendar created for tindico entries
const DefaultCalendarName = "Indico"

// Store manages calendar data persistence in a local SQLite database
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// calendar receiving new entries and scoping lookups
	calendarID string
}

// NewStore creates a new calendar store
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Use DELETE journal mode for immediate writes (no WAL)
	connStr := dbPath + "?_foreign_keys=on&_journal_mode=DELETE&_synchronous=FULL"
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Force single connection to avoid pooling issues
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calendars (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		color TEXT DEFAULT '#4285f4',
		read_only INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		calendar_id TEXT NOT NULL,
		uid TEXT,
		title TEXT NOT NULL,
		description TEXT,
		location TEXT,
		url TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		all_day INTEGER DEFAULT 0,
		created DATETIME,
		modified DATETIME,
		etag TEXT,
		status TEXT DEFAULT 'confirmed',
		FOREIGN KEY (calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_calendar ON events(calendar_id);
	CREATE INDEX IF NOT EXISTS idx_events_uid ON events(uid);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Name returns the provider name
func (s *Store) Name() string {
	return "local"
}

// Authenticate checks that the database is reachable
func (s *Store) Authenticate(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Calendar Operations ---

// SaveCalendar saves a calendar to the database
func (s *Store) SaveCalendar(ctx context.Context, c *Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Use ON CONFLICT DO UPDATE instead of REPLACE to avoid triggering CASCADE deletes
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendars (id, name, description, color, read_only)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			color = excluded.color,
			read_only = excluded.read_only`,
		c.ID, c.Name, c.Description, c.Color, c.ReadOnly)
	return err
}

// GetCalendarByName retrieves a calendar by its display name
func (s *Store) GetCalendarByName(ctx context.Context, name string) (*Calendar, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, color, read_only FROM calendars WHERE name = ?`, name)
	return scanCalendar(row)
}

// EnsureCalendar returns the calendar with the given name, creating it if
// needed, and makes it the target for new entries and lookups.
func (s *Store) EnsureCalendar(ctx context.Context, name string) (*Calendar, error) {
	if name == "" {
		name = DefaultCalendarName
	}
	cal, err := s.GetCalendarByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		cal = &Calendar{
			ID:          uuid.New().String(),
			Name:        name,
			Description: "Events synced from Indico",
			Color:       "#4285f4",
		}
		if err := s.SaveCalendar(ctx, cal); err != nil {
			return nil, fmt.Errorf("failed to create calendar %q: %w", name, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load calendar %q: %w", name, err)
	}

	s.mu.Lock()
	s.calendarID = cal.ID
	s.mu.Unlock()
	return cal, nil
}

func (s *Store) targetCalendar() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calendarID
}

// --- Event Operations ---

const eventColumns = `id, calendar_id, uid, title, description, location, url,
	start_time, end_time, all_day, created, modified, etag, status`

// CreateEvent inserts a new entry and returns it with its assigned identity
func (s *Store) CreateEvent(ctx context.Context, e *Event) (*Event, error) {
	created := e.Clone()
	if created.CalendarID == "" {
		created.CalendarID = s.targetCalendar()
	}
	if created.CalendarID == "" {
		return nil, fmt.Errorf("no target calendar selected")
	}
	created.ID = uuid.New().String()
	now := time.Now().UTC()
	created.Created = now
	created.Modified = now
	created.ETag = uuid.New().String()
	if created.Status == "" {
		created.Status = StatusConfirmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.CalendarID, nullString(created.UID), created.Title,
		created.Description, created.Location, created.URL,
		created.Start.UTC(), created.End.UTC(), created.AllDay,
		created.Created, created.Modified, created.ETag, created.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return created, nil
}

// UpdateEvent overwrites an existing entry in a single statement
func (s *Store) UpdateEvent(ctx context.Context, e *Event) (*Event, error) {
	updated := e.Clone()
	updated.Modified = time.Now().UTC()
	updated.ETag = uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			uid = ?,
			title = ?,
			description = ?,
			location = ?,
			url = ?,
			start_time = ?,
			end_time = ?,
			all_day = ?,
			modified = ?,
			etag = ?,
			status = ?
		WHERE id = ?`,
		nullString(updated.UID), updated.Title, updated.Description, updated.Location, updated.URL,
		updated.Start.UTC(), updated.End.UTC(), updated.AllDay,
		updated.Modified, updated.ETag, updated.Status, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("event %s: %w", updated.ID, ErrEventNotFound)
	}
	return updated, nil
}

// SetURL replaces the reference URL of an entry and leaves every other
// column as stored
func (s *Store) SetURL(ctx context.Context, id, url string) (*Event, error) {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET url = ?, modified = ?, etag = ? WHERE id = ?`,
		url, time.Now().UTC(), uuid.New().String(), id)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to set url: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	return s.GetEvent(ctx, id)
}

// GetEvent retrieves an event by ID
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	return e, err
}

// FindByUID returns every entry in the target calendar carrying uid
func (s *Store) FindByUID(ctx context.Context, uid string) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE uid = ?`
	args := []any{uid}
	if cal := s.targetCalendar(); cal != "" {
		query += ` AND calendar_id = ?`
		args = append(args, cal)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsInRange retrieves all entries overlapping [start, end)
func (s *Store) EventsInRange(ctx context.Context, start, end time.Time) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE status != 'cancelled'
		AND start_time < ? AND end_time > ?`
	args := []any{end.UTC(), start.UTC()}
	if cal := s.targetCalendar(); cal != "" {
		query += ` AND calendar_id = ?`
		args = append(args, cal)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY start_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// --- Scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanCalendar(row scanner) (*Calendar, error) {
	c := &Calendar{}
	var description, color sql.NullString
	err := row.Scan(&c.ID, &c.Name, &description, &color, &c.ReadOnly)
	if err != nil {
		return nil, err
	}
	c.Description = description.String
	c.Color = color.String
	if c.Color == "" {
		c.Color = "#4285f4"
	}
	return c, nil
}

func scanEvent(row scanner) (*Event, error) {
	e := &Event{}
	var uid, description, location, url, etag, status sql.NullString
	var created, modified sql.NullTime
	err := row.Scan(&e.ID, &e.CalendarID, &uid, &e.Title, &description, &location, &url,
		&e.Start, &e.End, &e.AllDay, &created, &modified, &etag, &status)
	if err != nil {
		return nil, err
	}

	e.UID = uid.String
	e.Description = description.String
	e.Location = location.String
	e.URL = url.String
	e.ETag = etag.String
	e.Status = EventStatus(status.String)
	if e.Status == "" {
		e.Status = StatusConfirmed
	}
	if created.Valid {
		e.Created = created.Time
	}
	if modified.Valid {
		e.Modified = modified.Time
	}
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
