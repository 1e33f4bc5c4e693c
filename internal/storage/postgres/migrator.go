package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsDir = "sql/migrations"

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

// MigrationStatus описывает состояние схемы.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// MigrateUp применяет up-миграции.
// steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	})
}

// MigrateDown откатывает миграции.
// steps<=0 интерпретируется как 1 шаг для безопасного поведения.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

// MigrationStatus возвращает текущую версию схемы; 0 означает, что миграции не применялись.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	var status MigrationStatus
	err := s.withMigrator(ctx, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return err
		}
		status = MigrationStatus{Version: version, Dirty: dirty}
		return nil
	})
	return status, err
}

// withMigrator открывает отдельное подключение под golang-migrate: его Close закрывает
// переданный *sql.DB, поэтому основной пул Store ему не отдаётся.
func (s *Store) withMigrator(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	if err := validateMigrations(migrationsFS); err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return fmt.Errorf("init migration source: %w", err)
	}

	sqlDB, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("ping migration connection: %w", err)
	}

	dbDriver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", dbDriver)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	err = fn(m)
	var short migrate.ErrShortLimit
	switch {
	case err == nil, errors.Is(err, migrate.ErrNoChange), errors.As(err, &short):
		return nil
	default:
		return fmt.Errorf("migrate: %w", err)
	}
}

// validateMigrations проверяет, что у каждой версии есть и up, и down файл:
// golang-migrate обнаруживает пропущенный down только в момент отката.
func validateMigrations(fsys fs.FS) error {
	files, err := fs.Glob(fsys, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no migration files found")
	}

	type pair struct {
		name     string
		up, down bool
	}
	versions := make(map[string]*pair)
	for _, file := range files {
		base := path.Base(file)
		matches := migrationFilePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			return fmt.Errorf("invalid migration file name: %s", base)
		}

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return fmt.Errorf("migration file is empty: %s", base)
		}

		p, ok := versions[matches[1]]
		if !ok {
			p = &pair{name: matches[2]}
			versions[matches[1]] = p
		} else if p.name != matches[2] {
			return fmt.Errorf("migration name mismatch for version %s: %s vs %s", matches[1], p.name, matches[2])
		}
		if matches[3] == "up" {
			p.up = true
		} else {
			p.down = true
		}
	}

	for version, p := range versions {
		if !p.up || !p.down {
			return fmt.Errorf("migration %s_%s must have both up and down files", version, p.name)
		}
	}
	return nil
}
