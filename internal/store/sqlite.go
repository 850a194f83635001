package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issues/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout stores timestamps as fixed-width UTC text so equality filters
// compare the same representation that was written.
const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Projects share one table and are told apart by the project column.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// newULID generates a new ULID string.
func newULID() string {
	return ulid.Make().String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

func (s *SQLiteStore) Find(ctx context.Context, project string, filter IssueFilter) ([]*models.Issue, error) {
	query := `SELECT id, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on, updated_on
		FROM issues`
	conditions := []string{"project = ?"}
	args := []any{project}

	addString := func(column string, v *string) {
		if v != nil {
			conditions = append(conditions, column+" = ?")
			args = append(args, *v)
		}
	}
	addString("id", filter.ID)
	addString("issue_title", filter.IssueTitle)
	addString("issue_text", filter.IssueText)
	addString("created_by", filter.CreatedBy)
	addString("assigned_to", filter.AssignedTo)
	addString("status_text", filter.StatusText)
	if filter.Open != nil {
		conditions = append(conditions, "open = ?")
		args = append(args, boolToInt(*filter.Open))
	}
	if filter.CreatedOn != nil {
		conditions = append(conditions, "created_on = ?")
		args = append(args, formatTime(*filter.CreatedOn))
	}
	if filter.UpdatedOn != nil {
		conditions = append(conditions, "updated_on = ?")
		args = append(args, formatTime(*filter.UpdatedOn))
	}

	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue := &models.Issue{}
		var createdOn, updatedOn string
		if err := rows.Scan(&issue.ID, &issue.IssueTitle, &issue.IssueText, &issue.CreatedBy,
			&issue.AssignedTo, &issue.StatusText, &issue.Open, &createdOn, &updatedOn); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		if issue.CreatedOn, err = time.Parse(timeLayout, createdOn); err != nil {
			return nil, fmt.Errorf("parse created_on of %s: %w", issue.ID, err)
		}
		if issue.UpdatedOn, err = time.Parse(timeLayout, updatedOn); err != nil {
			return nil, fmt.Errorf("parse updated_on of %s: %w", issue.ID, err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) InsertOne(ctx context.Context, project string, issue *models.Issue) error {
	id := newULID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, project, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, project, issue.IssueTitle, issue.IssueText, issue.CreatedBy, issue.AssignedTo, issue.StatusText,
		boolToInt(issue.Open), formatTime(issue.CreatedOn), formatTime(issue.UpdatedOn),
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	issue.ID = id
	return nil
}

func (s *SQLiteStore) UpdateOne(ctx context.Context, project, id string, update IssueUpdate) (bool, error) {
	sets := []string{"updated_on = ?"}
	args := []any{formatTime(update.UpdatedOn)}

	setString := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	setString("issue_title", update.IssueTitle)
	setString("issue_text", update.IssueText)
	setString("created_by", update.CreatedBy)
	setString("assigned_to", update.AssignedTo)
	setString("status_text", update.StatusText)
	if update.Open != nil {
		sets = append(sets, "open = ?")
		args = append(args, boolToInt(*update.Open))
	}
	args = append(args, project, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE issues SET "+strings.Join(sets, ", ")+" WHERE project = ? AND id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("update issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update issue: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) DeleteOne(ctx context.Context, project, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE project = ? AND id = ?", project, id)
	if err != nil {
		return false, fmt.Errorf("delete issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete issue: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT project FROM issues ORDER BY project")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, name)
	}
	return projects, rows.Err()
}
