package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-marks-api/internal/models"
)

const recordSchema = `CREATE TABLE IF NOT EXISTS student_records (
    dataset  TEXT    NOT NULL,
    position INTEGER NOT NULL,
    code     TEXT    NOT NULL,
    name     TEXT    NOT NULL,
    cw1      INTEGER NOT NULL,
    cw2      INTEGER NOT NULL,
    cw3      INTEGER NOT NULL,
    exam     INTEGER NOT NULL,
    PRIMARY KEY (dataset, position)
)`

// RecordPostgresRepository keeps the six-field records in PostgreSQL, one
// ordered list per dataset name. Save replaces the whole dataset, mirroring
// the file backend.
type RecordPostgresRepository struct {
	db *sqlx.DB
}

// NewRecordPostgresRepository constructs a RecordPostgresRepository.
func NewRecordPostgresRepository(db *sqlx.DB) *RecordPostgresRepository {
	return &RecordPostgresRepository{db: db}
}

// EnsureSchema creates the backing table when missing.
func (r *RecordPostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, recordSchema); err != nil {
		return fmt.Errorf("ensure student_records schema: %w", err)
	}
	return nil
}

// Load returns the dataset's records ordered by position.
func (r *RecordPostgresRepository) Load(ctx context.Context, dataset string) (*models.LoadResult, error) {
	const query = `SELECT code, name, cw1, cw2, cw3, exam FROM student_records WHERE dataset = $1 ORDER BY position`
	records := make([]models.StudentRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, dataset); err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", dataset, err)
	}
	return &models.LoadResult{Source: dataset, Records: records, Loaded: len(records)}, nil
}

// Save atomically replaces the dataset's rows with records in order.
func (r *RecordPostgresRepository) Save(ctx context.Context, dataset string, records []models.StudentRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM student_records WHERE dataset = $1`, dataset); err != nil {
		return fmt.Errorf("clear dataset %s: %w", dataset, err)
	}

	const insertQuery = `INSERT INTO student_records (dataset, position, code, name, cw1, cw2, cw3, exam)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, rec := range records {
		if _, err = tx.ExecContext(ctx, insertQuery, dataset, i, rec.Code, rec.Name, rec.CW1, rec.CW2, rec.CW3, rec.Exam); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.Code, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset %s: %w", dataset, err)
	}
	return nil
}
