package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey сериализует конкурентные миграции между инстансами.
const advisoryLockKey = int64(47210936)

const migrationsTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// migration — пара up/down SQL одной версии схемы.
type migration struct {
	version int64
	name    string
	up      string
	down    string
}

// MigrateUp применяет все недостающие up-миграции.
func (s *Store) MigrateUp(ctx context.Context) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		migrations, err := loadMigrations()
		if err != nil {
			return err
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			if applied[m.version] {
				continue
			}
			if err := runInTx(ctx, conn, m.up, `
				INSERT INTO schema_migrations (version, name) VALUES ($1, $2)
			`, m.version, m.name); err != nil {
				return fmt.Errorf("apply migration %d_%s: %w", m.version, m.name, err)
			}
		}
		return nil
	})
}

// MigrateDown откатывает одну последнюю применённую миграцию.
func (s *Store) MigrateDown(ctx context.Context) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		migrations, err := loadMigrations()
		if err != nil {
			return err
		}
		byVersion := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			byVersion[m.version] = m
		}

		var last sql.NullInt64
		if err := conn.QueryRowContext(ctx, `
			SELECT MAX(version) FROM schema_migrations
		`).Scan(&last); err != nil {
			return fmt.Errorf("query last migration: %w", err)
		}
		if !last.Valid {
			return nil
		}

		m, ok := byVersion[last.Int64]
		if !ok {
			return fmt.Errorf("no down migration for applied version %d", last.Int64)
		}
		if err := runInTx(ctx, conn, m.down, `
			DELETE FROM schema_migrations WHERE version = $1
		`, m.version); err != nil {
			return fmt.Errorf("rollback migration %d_%s: %w", m.version, m.name, err)
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию схемы и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, fmt.Errorf("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationsTableDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	if err := s.db.QueryRowContext(queryCtx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations
	`).Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancelUnlock := context.WithTimeout(context.Background(), opTimeout)
		defer cancelUnlock()
		_, _ = conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", advisoryLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationsTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	return fn(conn)
}

func runInTx(ctx context.Context, conn *sql.Conn, body, bookkeeping string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// loadMigrations читает встроенные файлы вида NNNN_name.up.sql /
// NNNN_name.down.sql и группирует их по версии.
func loadMigrations() ([]migration, error) {
	files, err := fs.Glob(migrationsFS, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no embedded migration files")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)

		version, name, direction, err := parseMigrationName(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: name}
			byVersion[version] = m
		} else if m.name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.name, name)
		}

		switch direction {
		case "up":
			m.up = body
		case "down":
			m.down = body
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.version, m.name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

func parseMigrationName(base string) (version int64, name, direction string, err error) {
	trimmed, ok := strings.CutSuffix(base, ".sql")
	if !ok {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}

	switch {
	case strings.HasSuffix(trimmed, ".up"):
		direction = "up"
	case strings.HasSuffix(trimmed, ".down"):
		direction = "down"
	default:
		return 0, "", "", fmt.Errorf("migration %s must end with .up.sql or .down.sql", base)
	}
	trimmed = strings.TrimSuffix(trimmed, "."+direction)

	versionRaw, name, ok := strings.Cut(trimmed, "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("migration %s must be named NNNN_name.%s.sql", base, direction)
	}
	version, err = strconv.ParseInt(versionRaw, 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", base, err)
	}
	return version, name, direction, nil
}

// ensureSchemaTimeout ограничивает полный прогон миграций при старте.
const ensureSchemaTimeout = 30 * time.Second

// EnsureSchema применяет все up-миграции; используется при старте сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	migrateCtx, cancel := context.WithTimeout(ctx, ensureSchemaTimeout)
	defer cancel()
	return s.MigrateUp(migrateCtx)
}
