// Package db keeps the training run log in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TrainingRun is one row of the training log.
type TrainingRun struct {
	ID                 int64     `json:"id"`
	Version            string    `json:"version"`
	Algorithm          string    `json:"algorithm"`
	Seed               int64     `json:"seed"`
	SplitFraction      float64   `json:"split_fraction"`
	Accuracy           float64   `json:"accuracy"`
	MalignantPrecision float64   `json:"malignant_precision"`
	MalignantRecall    float64   `json:"malignant_recall"`
	MalignantF1        float64   `json:"malignant_f1"`
	TrainSize          int       `json:"train_size"`
	TestSize           int       `json:"test_size"`
	DataPoints         int       `json:"data_points"`
	Source             string    `json:"source"`
	TrainedAt          time.Time `json:"trained_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version TEXT NOT NULL UNIQUE,
    algorithm VARCHAR(20) NOT NULL,
    seed INTEGER NOT NULL,
    split_fraction REAL NOT NULL,
    accuracy REAL,
    precision REAL,
    recall REAL,
    f1 REAL,
    train_size INTEGER,
    test_size INTEGER,
    data_points INTEGER,
    source TEXT,
    trained_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
`

type RunLog struct {
	db *sql.DB
}

// Open creates the database file and its parent directory if needed.
func Open(path string) (*RunLog, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// one writer; the log is tiny
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &RunLog{db: database}, nil
}

func (l *RunLog) Record(ctx context.Context, run TrainingRun) (int64, error) {
	if run.Version == "" {
		return 0, errors.New("run version is required")
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now()
	}
	res, err := l.db.ExecContext(ctx, `
        INSERT INTO training_log (
            version, algorithm, seed, split_fraction, accuracy, precision, recall, f1,
            train_size, test_size, data_points, source, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Version, run.Algorithm, run.Seed, run.SplitFraction, run.Accuracy,
		run.MalignantPrecision, run.MalignantRecall, run.MalignantF1,
		run.TrainSize, run.TestSize, run.DataPoints, run.Source, run.TrainedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("record run %s: %w", run.Version, err)
	}
	return res.LastInsertId()
}

// List returns the most recent runs first. limit <= 0 returns all of them.
func (l *RunLog) List(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
        SELECT id, version, algorithm, seed, split_fraction, accuracy, precision, recall, f1,
               train_size, test_size, data_points, source, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		var source sql.NullString
		if err := rows.Scan(&run.ID, &run.Version, &run.Algorithm, &run.Seed, &run.SplitFraction,
			&run.Accuracy, &run.MalignantPrecision, &run.MalignantRecall, &run.MalignantF1,
			&run.TrainSize, &run.TestSize, &run.DataPoints, &source, &run.TrainedAt); err != nil {
			return nil, err
		}
		run.Source = source.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (l *RunLog) Close() error {
	return l.db.Close()
}
