package trust

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	// SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/martincostello/costellobot-sub000/internal/observability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const driver = "sqlite"

// TrustedDependency is one persisted allow-list entry.
type TrustedDependency struct {
	Ecosystem Ecosystem
	ID        string
	Version   string
	TrustedAt time.Time
}

// Store persists the allow-list of dependency (ecosystem, id, version)
// tuples previously judged trustworthy. Keys are normalized so writes are
// idempotent and reads are case and path-format insensitive. Concurrent
// writes to the same key are last-write-wins.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the trust database at the given path.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "data/trust"
	}

	db, err := sql.Open(driver, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open trust database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to migrate trust database: %w", err)
	}

	return &Store{db: db}, nil
}

func sqliteDSN(path string) string {
	values := url.Values{}
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + values.Encode()
}

// Trust records the tuple as trusted, overwriting any previous entry for
// the same normalized key.
func (s *Store) Trust(ctx context.Context, ecosystem Ecosystem, id, version string) error {
	ctx, span := observability.StartDBSpan(ctx, "trust_dependency", "exec")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trusted_dependencies (ecosystem, id, version, trusted_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (ecosystem, id, version) DO UPDATE SET trusted_at = excluded.trusted_at`,
		normalizeEcosystem(ecosystem), normalizeID(id), normalizeVersion(version), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to trust %s %s@%s: %w", ecosystem, id, version, err)
	}
	return nil
}

// Distrust removes the tuple. Removing an absent tuple is not an error.
func (s *Store) Distrust(ctx context.Context, ecosystem Ecosystem, id, version string) error {
	ctx, span := observability.StartDBSpan(ctx, "distrust_dependency", "exec")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM trusted_dependencies WHERE ecosystem = ? AND id = ? AND version = ?`,
		normalizeEcosystem(ecosystem), normalizeID(id), normalizeVersion(version))
	if err != nil {
		return fmt.Errorf("failed to distrust %s %s@%s: %w", ecosystem, id, version, err)
	}
	return nil
}

// DistrustAll clears the entire allow-list.
func (s *Store) DistrustAll(ctx context.Context) error {
	ctx, span := observability.StartDBSpan(ctx, "distrust_all", "exec")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM trusted_dependencies`); err != nil {
		return fmt.Errorf("failed to clear trusted dependencies: %w", err)
	}
	return nil
}

// GetTrust enumerates the trusted dependencies for one ecosystem, most
// recently trusted first.
func (s *Store) GetTrust(ctx context.Context, ecosystem Ecosystem) ([]TrustedDependency, error) {
	ctx, span := observability.StartDBSpan(ctx, "get_trust", "query")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, trusted_at FROM trusted_dependencies
		 WHERE ecosystem = ? ORDER BY trusted_at DESC, id, version`,
		normalizeEcosystem(ecosystem))
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted dependencies for %s: %w", ecosystem, err)
	}
	defer rows.Close()

	var entries []TrustedDependency
	for rows.Next() {
		entry := TrustedDependency{Ecosystem: ecosystem}
		if err := rows.Scan(&entry.ID, &entry.Version, &entry.TrustedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trusted dependency: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// IsTrusted reports whether the tuple is in the allow-list.
func (s *Store) IsTrusted(ctx context.Context, ecosystem Ecosystem, id, version string) (bool, error) {
	ctx, span := observability.StartDBSpan(ctx, "is_trusted", "query_row")
	defer span.End()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trusted_dependencies WHERE ecosystem = ? AND id = ? AND version = ?`,
		normalizeEcosystem(ecosystem), normalizeID(id), normalizeVersion(version)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query trust for %s %s@%s: %w", ecosystem, id, version, err)
	}
	return count > 0, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func normalizeEcosystem(ecosystem Ecosystem) string {
	return strings.ToUpper(ecosystem.String())
}

// normalizeID upper-cases the id and substitutes path separators so ids
// like "actions/checkout" and "ACTIONS\CHECKOUT" share one key.
func normalizeID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, "/", "~")
	return strings.ReplaceAll(id, "\\", "~")
}

func normalizeVersion(version string) string {
	return strings.ToUpper(strings.TrimSpace(version))
}
