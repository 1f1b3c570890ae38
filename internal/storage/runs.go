package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zring/cfbmodel/internal/report"
)

// ErrRunNotFound is returned when a prediction run does not exist.
var ErrRunNotFound = errors.New("prediction run not found")

// RunSummary is a stored run without its predictions.
type RunSummary = report.Metadata

// RunRepository persists prediction runs.
type RunRepository interface {
	// Save stores a run and its predictions, replacing a run with the same id.
	Save(ctx context.Context, run *report.Run) error

	// Get returns a run with its predictions.
	Get(ctx context.Context, runID string) (*report.Run, error)

	// Latest returns the most recently generated run.
	Latest(ctx context.Context) (*report.Run, error)

	// List returns run metadata, newest first. A non-positive limit returns all runs.
	List(ctx context.Context, limit int) ([]RunSummary, error)

	// ListForWeek returns run metadata for one week, newest first.
	ListForWeek(ctx context.Context, year, week int) ([]RunSummary, error)

	// Delete removes a run and its predictions.
	Delete(ctx context.Context, runID string) error
}

// runRepository implements RunRepository using SQLite.
type runRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = "run_id, year, week, season_type, generated_at, model_path, model_type, games_found"

func (r *runRepository) Save(ctx context.Context, run *report.Run) error {
	md := run.Metadata
	if md.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"predictions", "prediction_runs"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", md.RunID); err != nil {
				return fmt.Errorf("failed to replace run %s: %w", md.RunID, err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prediction_runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, md.RunID, md.Year, md.Week, md.SeasonType, md.GeneratedAt.UnixNano(), md.ModelPath, md.ModelType, len(run.Predictions))
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", md.RunID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO predictions (
				run_id, game_number, game_id, home_team, away_team, start_date,
				predicted_winner, confidence, home_win_probability, away_win_probability, spread
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, p := range run.Predictions {
			var spread sql.NullFloat64
			if p.Spread != nil {
				spread = sql.NullFloat64{Float64: *p.Spread, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				md.RunID, p.GameNumber, p.GameID, p.HomeTeam, p.AwayTeam, p.StartDate,
				p.PredictedWinner, p.Confidence, p.HomeWinProbability, p.AwayWinProbability, spread,
			)
			if err != nil {
				return fmt.Errorf("failed to insert prediction %d: %w", p.GameNumber, err)
			}
		}
		return nil
	})
}

func (r *runRepository) Get(ctx context.Context, runID string) (*report.Run, error) {
	row := r.db.Conn().QueryRowContext(ctx, "SELECT "+runColumns+" FROM prediction_runs WHERE run_id = ?", runID)
	md, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return r.withPredictions(ctx, md)
}

func (r *runRepository) Latest(ctx context.Context) (*report.Run, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM prediction_runs ORDER BY generated_at DESC, run_id LIMIT 1")
	md, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return r.withPredictions(ctx, md)
}

func (r *runRepository) List(ctx context.Context, limit int) ([]RunSummary, error) {
	query := "SELECT " + runColumns + " FROM prediction_runs ORDER BY generated_at DESC, run_id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *runRepository) ListForWeek(ctx context.Context, year, week int) ([]RunSummary, error) {
	return r.list(ctx,
		"SELECT "+runColumns+" FROM prediction_runs WHERE year = ? AND week = ? ORDER BY generated_at DESC, run_id",
		year, week)
}

func (r *runRepository) Delete(ctx context.Context, runID string) error {
	res, err := r.db.Conn().ExecContext(ctx, "DELETE FROM prediction_runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (r *runRepository) list(ctx context.Context, query string, args ...interface{}) ([]RunSummary, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	runs := []RunSummary{}
	for rows.Next() {
		md, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, md)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func (r *runRepository) withPredictions(ctx context.Context, md report.Metadata) (*report.Run, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT game_number, game_id, home_team, away_team, start_date,
			predicted_winner, confidence, home_win_probability, away_win_probability, spread
		FROM predictions WHERE run_id = ? ORDER BY game_number
	`, md.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	run := &report.Run{Metadata: md, Predictions: []report.Prediction{}}
	for rows.Next() {
		var (
			p      report.Prediction
			spread sql.NullFloat64
		)
		err := rows.Scan(&p.GameNumber, &p.GameID, &p.HomeTeam, &p.AwayTeam, &p.StartDate,
			&p.PredictedWinner, &p.Confidence, &p.HomeWinProbability, &p.AwayWinProbability, &spread)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if spread.Valid {
			v := spread.Float64
			p.Spread = &v
		}
		run.Predictions = append(run.Predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (report.Metadata, error) {
	var (
		md          report.Metadata
		generatedAt int64
	)
	err := s.Scan(&md.RunID, &md.Year, &md.Week, &md.SeasonType, &generatedAt, &md.ModelPath, &md.ModelType, &md.GamesFound)
	if err != nil {
		return md, err
	}
	md.GeneratedAt = time.Unix(0, generatedAt).UTC()
	return md, nil
}
