package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"depotdeck/internal/config"
	"depotdeck/internal/services"
)

// Store manages installed-title persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const titleColumns = "target_key, title_id, title_name, install_root, install_dir, size_bytes, installed_via_marker, installed_at, updated_at"

// Open initializes or connects to the records database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RecordsPath())
}

// OpenPath opens the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Upsert inserts or replaces the record for (TargetKey, TitleID). The depot
// list is replaced wholesale; InstalledAt is kept from the first install.
func (s *Store) Upsert(ctx context.Context, title InstalledTitle) error {
	if strings.TrimSpace(title.TargetKey) == "" || strings.TrimSpace(title.TitleID) == "" {
		return services.Wrap(services.ErrValidation, "records", "upsert", "target key and title id required", nil)
	}
	now := time.Now().UTC()
	if title.InstalledAt.IsZero() {
		title.InstalledAt = now
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin upsert: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO installed_titles (`+titleColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (target_key, title_id) DO UPDATE SET
                 title_name = excluded.title_name,
                 install_root = excluded.install_root,
                 install_dir = excluded.install_dir,
                 size_bytes = excluded.size_bytes,
                 installed_via_marker = excluded.installed_via_marker,
                 updated_at = excluded.updated_at`,
			title.TargetKey,
			title.TitleID,
			title.TitleName,
			title.InstallRoot,
			title.InstallDir,
			int64(title.SizeBytes),
			boolToInt(title.InstalledViaMarker),
			title.InstalledAt.UTC().Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("upsert title: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM installed_depots WHERE target_key = ? AND title_id = ?`,
			title.TargetKey, title.TitleID,
		); err != nil {
			return fmt.Errorf("clear depots: %w", err)
		}
		for _, d := range title.Depots {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO installed_depots (target_key, title_id, depot_id, manifest_id) VALUES (?, ?, ?, ?)`,
				title.TargetKey, title.TitleID, d.DepotID, d.ManifestID,
			); err != nil {
				return fmt.Errorf("insert depot %s: %w", d.DepotID, err)
			}
		}
		return tx.Commit()
	})
}

// Get returns the record for a title on a target, or nil when absent.
func (s *Store) Get(ctx context.Context, targetKey, titleID string) (*InstalledTitle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+titleColumns+` FROM installed_titles WHERE target_key = ? AND title_id = ?`,
		targetKey, titleID,
	)
	title, err := scanTitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get title: %w", err)
	}
	if err := s.loadDepots(ctx, []*InstalledTitle{title}); err != nil {
		return nil, err
	}
	return title, nil
}

// List returns every record for a target ordered by title name. An empty
// targetKey lists all targets.
func (s *Store) List(ctx context.Context, targetKey string) ([]*InstalledTitle, error) {
	query := `SELECT ` + titleColumns + ` FROM installed_titles`
	var args []any
	if targetKey != "" {
		query += ` WHERE target_key = ?`
		args = append(args, targetKey)
	}
	query += ` ORDER BY target_key, title_name COLLATE NOCASE, title_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer rows.Close()

	var titles []*InstalledTitle
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	if err := s.loadDepots(ctx, titles); err != nil {
		return nil, err
	}
	return titles, nil
}

// Delete removes the record and its depots. Deleting a missing record is
// not an error; the return reports whether a row existed.
func (s *Store) Delete(ctx context.Context, targetKey, titleID string) (bool, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		// foreign_keys is per connection, so depots are removed explicitly.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM installed_depots WHERE target_key = ? AND title_id = ?`,
			targetKey, titleID,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM installed_titles WHERE target_key = ? AND title_id = ?`,
			targetKey, titleID,
		)
		if err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("delete title: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) loadDepots(ctx context.Context, titles []*InstalledTitle) error {
	if len(titles) == 0 {
		return nil
	}
	index := make(map[[2]string]*InstalledTitle, len(titles))
	for _, t := range titles {
		index[[2]string{t.TargetKey, t.TitleID}] = t
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_key, title_id, depot_id, manifest_id FROM installed_depots
         ORDER BY target_key, title_id, CAST(depot_id AS INTEGER), depot_id`)
	if err != nil {
		return fmt.Errorf("list depots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var targetKey, titleID string
		var d DepotVersion
		if err := rows.Scan(&targetKey, &titleID, &d.DepotID, &d.ManifestID); err != nil {
			return fmt.Errorf("scan depot: %w", err)
		}
		if t, ok := index[[2]string{targetKey, titleID}]; ok {
			t.Depots = append(t.Depots, d)
		}
	}
	return rows.Err()
}

func scanTitle(scanner interface{ Scan(dest ...any) error }) (*InstalledTitle, error) {
	var (
		title      InstalledTitle
		size       int64
		viaMarker  int64
		installed  string
		updatedRaw string
	)
	if err := scanner.Scan(
		&title.TargetKey,
		&title.TitleID,
		&title.TitleName,
		&title.InstallRoot,
		&title.InstallDir,
		&size,
		&viaMarker,
		&installed,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	title.SizeBytes = uint64(max(size, 0))
	title.InstalledViaMarker = viaMarker != 0
	if ts, err := time.Parse(time.RFC3339Nano, installed); err == nil {
		title.InstalledAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		title.UpdatedAt = ts
	}
	return &title, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
