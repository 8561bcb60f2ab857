package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const jobColumns = `id, name, kind, method, url, body, headers, start_ms, end_ms, interval_ms, trigger_ms, sidelined, not_found_count, created_at`

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (job.Record, error) {
	var (
		r                             job.Record
		body, headers                 sql.NullString
		startMS, endMS, trigMS, sidel int64
		createdAt                     string
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Kind, &r.Action.Method, &r.Action.URL, &body, &headers,
		&startMS, &endMS, &r.IntervalMS, &trigMS, &sidel, &r.NotFoundCount, &createdAt)
	if err != nil {
		return job.Record{}, err
	}
	r.Action.Body = body.String
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &r.Action.Headers); err != nil {
			return job.Record{}, fmt.Errorf("job %q headers: %w", r.Name, err)
		}
	}
	r.Start = fromMS(startMS)
	r.End = fromMS(endMS)
	r.TriggerTime = fromMS(trigMS)
	r.Sidelined = sidel != 0
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

func (s *sqliteStore) findBy(ctx context.Context, where string, arg any) (*job.Job, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job.FromRecord(r)
}

func (s *sqliteStore) FindByName(ctx context.Context, name string) (*job.Job, error) {
	return s.findBy(ctx, "name = ?", name)
}

func (s *sqliteStore) FindByID(ctx context.Context, id int64) (*job.Job, error) {
	return s.findBy(ctx, "id = ?", id)
}

func (s *sqliteStore) List(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rs []job.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rs = append(rs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildAll(rs)
}

func (s *sqliteStore) Save(ctx context.Context, j *job.Job) (*job.Job, error) {
	r := j.Record()
	var headers any
	if len(r.Action.Headers) > 0 {
		b, err := json.Marshal(r.Action.Headers)
		if err != nil {
			return nil, err
		}
		headers = string(b)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	args := []any{
		r.Name, string(r.Kind), r.Action.Method, r.Action.URL, nullStr(r.Action.Body), headers,
		toMS(r.Start), toMS(r.End), r.IntervalMS, toMS(r.TriggerTime),
		boolInt(r.Sidelined), r.NotFoundCount, created.Format(time.RFC3339Nano),
	}

	if r.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO jobs(name, kind, method, url, body, headers, start_ms, end_ms, interval_ms, trigger_ms, sidelined, not_found_count, created_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicateName
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		j.ID = id
		return j, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET name=?, kind=?, method=?, url=?, body=?, headers=?, start_ms=?, end_ms=?, interval_ms=?, trigger_ms=?,
		 sidelined=?, not_found_count=?, created_at=? WHERE id=?`, append(args, r.ID)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *sqliteStore) Delete(ctx context.Context, j *job.Job) error {
	if j.ID != 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE name = ?`, j.Name)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
