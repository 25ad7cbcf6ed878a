package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"github.com/phrazzld/pagescan/internal/store"
)

const scanJobColumns = `id, page_id, state, image_urls, raw_text, structured_output,
	error_kind, error_detail, routing_state, routing_error, created_at, updated_at`

// PostgresScanJobStore implements store.ScanJobStore.
type PostgresScanJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresScanJobStore creates a scan job store over a connection or transaction.
func NewPostgresScanJobStore(db store.DBTX, logger *slog.Logger) *PostgresScanJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresScanJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "scan_job_store")),
	}
}

var _ store.ScanJobStore = (*PostgresScanJobStore)(nil)

// WithTx implements store.ScanJobStore.WithTx
func (s *PostgresScanJobStore) WithTx(tx *sql.Tx) store.ScanJobStore {
	return &PostgresScanJobStore{db: tx, logger: s.logger}
}

// Create implements store.ScanJobStore.Create
func (s *PostgresScanJobStore) Create(ctx context.Context, job *domain.ScanJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("scan job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	row, err := toScanJobRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scan_jobs (` + scanJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		job.ID, job.PageID, job.State, row.imageURLs, row.rawText, row.structured,
		row.errorKind, row.errorDetail, job.RoutingState, row.routingError,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return store.ErrPageNotFound
		}
		mapped := MapConstraintViolation(err, map[string]error{
			constraintOneUnresolvedJob: store.ErrUnresolvedJobExists,
		})
		log.Error("failed to create scan job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("page_id", job.PageID.String()))
		return mapped
	}

	log.Info("scan job created",
		slog.String("job_id", job.ID.String()),
		slog.String("page_id", job.PageID.String()),
		slog.Int("images", len(job.ImageURLs)))
	return nil
}

// GetByID implements store.ScanJobStore.GetByID
func (s *PostgresScanJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error) {
	return s.getOne(ctx, `SELECT `+scanJobColumns+` FROM scan_jobs WHERE id = $1`, id)
}

// LockByID implements store.ScanJobStore.LockByID
func (s *PostgresScanJobStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.ScanJob, error) {
	return s.getOne(ctx, `SELECT `+scanJobColumns+` FROM scan_jobs WHERE id = $1 FOR UPDATE`, id)
}

// FindUnresolvedByPage implements store.ScanJobStore.FindUnresolvedByPage
func (s *PostgresScanJobStore) FindUnresolvedByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.ScanJob, error) {
	return s.list(ctx, `
		SELECT `+scanJobColumns+`
		FROM scan_jobs
		WHERE page_id = $1 AND state IN ('pending', 'processing')
		ORDER BY created_at
		FOR UPDATE
	`, pageID)
}

// GetLatestByPage implements store.ScanJobStore.GetLatestByPage
func (s *PostgresScanJobStore) GetLatestByPage(ctx context.Context, pageID uuid.UUID) (*domain.ScanJob, error) {
	return s.getOne(ctx, `
		SELECT `+scanJobColumns+`
		FROM scan_jobs
		WHERE page_id = $1
		ORDER BY (state IN ('pending', 'processing')) DESC, created_at DESC
		LIMIT 1
	`, pageID)
}

// FindStale implements store.ScanJobStore.FindStale
func (s *PostgresScanJobStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ScanJob, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, `
		SELECT `+scanJobColumns+`
		FROM scan_jobs
		WHERE state IN ('pending', 'processing') AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, cutoff.UTC(), limit)
}

// Update implements store.ScanJobStore.Update
func (s *PostgresScanJobStore) Update(ctx context.Context, job *domain.ScanJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("scan job validation failed during update",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	row, err := toScanJobRow(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE scan_jobs
		SET state = $1, raw_text = $2, structured_output = $3, error_kind = $4,
		    error_detail = $5, routing_state = $6, routing_error = $7, updated_at = $8
		WHERE id = $9
	`
	result, err := s.db.ExecContext(ctx, query,
		job.State, row.rawText, row.structured, row.errorKind, row.errorDetail,
		job.RoutingState, row.routingError, job.UpdatedAt, job.ID,
	)
	if err != nil {
		log.Error("failed to update scan job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("state", string(job.State)))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrScanJobNotFound); err != nil {
		return err
	}

	log.Debug("scan job updated",
		slog.String("job_id", job.ID.String()),
		slog.String("state", string(job.State)),
		slog.String("routing_state", string(job.RoutingState)))
	return nil
}

func (s *PostgresScanJobStore) getOne(ctx context.Context, query string, arg any) (*domain.ScanJob, error) {
	job, err := scanScanJob(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrScanJobNotFound
		}
		if !errors.Is(err, store.ErrInvalidEntity) {
			err = MapError(err)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get scan job",
			slog.String("error", err.Error()))
		return nil, err
	}
	return job, nil
}

func (s *PostgresScanJobStore) list(ctx context.Context, query string, args ...any) ([]*domain.ScanJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query scan jobs", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	jobs := []*domain.ScanJob{}
	for rows.Next() {
		job, err := scanScanJob(rows)
		if err != nil {
			log.Error("failed to scan job row", slog.String("error", err.Error()))
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return jobs, nil
}

// scanJobRow holds the column encodings of the nullable and JSON fields.
type scanJobRow struct {
	imageURLs    []byte
	rawText      sql.NullString
	structured   []byte
	errorKind    sql.NullString
	errorDetail  sql.NullString
	routingError sql.NullString
}

func toScanJobRow(job *domain.ScanJob) (scanJobRow, error) {
	var row scanJobRow
	var err error

	row.imageURLs, err = json.Marshal(job.ImageURLs)
	if err != nil {
		return row, fmt.Errorf("failed to encode image urls: %w", err)
	}
	if job.RawText != nil {
		row.rawText = sql.NullString{String: *job.RawText, Valid: true}
	}
	if job.Structured != nil {
		row.structured, err = json.Marshal(job.Structured)
		if err != nil {
			return row, fmt.Errorf("failed to encode structured output: %w", err)
		}
	}
	if job.Error != nil {
		row.errorKind = sql.NullString{String: string(job.Error.Kind), Valid: true}
		row.errorDetail = sql.NullString{String: job.Error.Detail, Valid: true}
	}
	if job.RoutingError != "" {
		row.routingError = sql.NullString{String: job.RoutingError, Valid: true}
	}
	return row, nil
}

// scanScanJob decodes a row into a job. Stored documents that do not match
// a known shape are reported as store.ErrInvalidEntity.
func scanScanJob(r rowScanner) (*domain.ScanJob, error) {
	var job domain.ScanJob
	var row scanJobRow
	var state, routingState string

	if err := r.Scan(
		&job.ID, &job.PageID, &state, &row.imageURLs, &row.rawText, &row.structured,
		&row.errorKind, &row.errorDetail, &routingState, &row.routingError,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.State = domain.ScanJobState(state)
	job.RoutingState = domain.RoutingState(routingState)
	job.RoutingError = row.routingError.String

	if err := json.Unmarshal(row.imageURLs, &job.ImageURLs); err != nil {
		return nil, fmt.Errorf("%w: image_urls: %v", store.ErrInvalidEntity, err)
	}
	if row.rawText.Valid {
		text := row.rawText.String
		job.RawText = &text
	}
	if row.structured != nil {
		out, err := domain.DecodeStructuredOutput(row.structured)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		job.Structured = &out
	}
	if row.errorKind.Valid {
		jobErr, err := domain.DecodeJobError(row.errorKind.String, row.errorDetail.String)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		job.Error = &jobErr
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return &job, nil
}
