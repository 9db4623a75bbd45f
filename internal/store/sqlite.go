package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps episode history in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore creates or opens a store at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string { return s.dbPath }

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		start_time INTEGER NOT NULL,
		end_time INTEGER
	);

	CREATE TABLE IF NOT EXISTS steps (
		episode_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		reward REAL NOT NULL,
		total_reward REAL NOT NULL,
		stage_bonus INTEGER NOT NULL,
		success INTEGER NOT NULL,
		node_idx INTEGER NOT NULL,
		metrics_json TEXT,
		PRIMARY KEY (episode_id, step),
		FOREIGN KEY (episode_id) REFERENCES episodes(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveStep appends a step. Step 0 starts the episode over.
func (s *SQLiteStore) SaveStep(ctx context.Context, rec *StepRecord) error {
	if rec == nil {
		return fmt.Errorf("nil step record")
	}
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UnixNano()
	if rec.Step == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE episode_id = ?`, rec.EpisodeID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO episodes (id, start_time) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET start_time = excluded.start_time, end_time = NULL`,
			rec.EpisodeID, now); err != nil {
			return err
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE episode_id = ?`, rec.EpisodeID).Scan(&count); err != nil {
		return err
	}
	if rec.Step != count {
		return fmt.Errorf("episode %q: expected step %d, got %d", rec.EpisodeID, count, rec.Step)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO steps (episode_id, step, reward, total_reward, stage_bonus, success, node_idx, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EpisodeID, rec.Step, rec.Reward, rec.TotalReward, rec.StageBonus, rec.Success, rec.NodeIdx, string(metricsJSON)); err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE episodes SET end_time = ? WHERE id = ?`, now, rec.EpisodeID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEpisode returns the episode history
func (s *SQLiteStore) GetEpisode(ctx context.Context, episodeID string) (*EpisodeRun, error) {
	var (
		start int64
		end   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT start_time, end_time FROM episodes WHERE id = ?`, episodeID).Scan(&start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, episodeID)
	}
	if err != nil {
		return nil, err
	}

	run := &EpisodeRun{EpisodeID: episodeID, StartTime: time.Unix(0, start)}
	if end.Valid {
		t := time.Unix(0, end.Int64)
		run.EndTime = &t
	}
	if run.Steps, err = s.steps(ctx, episodeID); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) steps(ctx context.Context, episodeID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, reward, total_reward, stage_bonus, success, node_idx, metrics_json
		FROM steps WHERE episode_id = ? ORDER BY step`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		rec := StepRecord{EpisodeID: episodeID}
		var metricsJSON sql.NullString
		if err := rows.Scan(&rec.Step, &rec.Reward, &rec.TotalReward, &rec.StageBonus, &rec.Success, &rec.NodeIdx, &metricsJSON); err != nil {
			return nil, err
		}
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &rec.Metrics); err != nil {
				return nil, fmt.Errorf("failed to decode metrics of step %d: %w", rec.Step, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEpisodes returns episodes in the order they were first saved
func (s *SQLiteStore) ListEpisodes(ctx context.Context, opts ListOptions) ([]*EpisodeRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM episodes ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*EpisodeRun
	skipped := 0
	for _, id := range ids {
		run, err := s.GetEpisode(ctx, id)
		if err != nil {
			return nil, err
		}
		if opts.SucceededOnly && !run.Succeeded() {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, run)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// DeleteEpisode removes an episode and its steps
func (s *SQLiteStore) DeleteEpisode(ctx context.Context, episodeID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE episode_id = ?`, episodeID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, episodeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, episodeID)
	}
	return tx.Commit()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
