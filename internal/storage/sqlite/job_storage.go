package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/models"
)

// ErrJobNotFound is returned when a job is not found in the database.
var ErrJobNotFound = errors.New("job not found")

// JobStore implements the durable job queue described in spec.md §4.1:
// one row per organisation number, advancing through a fixed stage
// order, claimed by workers in priority/age order, with crash-safe
// transactional stage transitions.
type JobStore struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStore creates a job store backed by the given SQLite connection.
func NewJobStore(db *DB, logger arbor.ILogger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

// retryWithExponentialBackoff retries an operation with exponential
// backoff when SQLite reports the database as busy/locked.
func retryWithExponentialBackoff(ctx context.Context, operation func() error, maxAttempts int, initialDelay time.Duration, logger arbor.ILogger) error {
	var lastErr error
	delay := initialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		errMsg := lastErr.Error()
		isBusyError := strings.Contains(errMsg, "database is locked") || strings.Contains(errMsg, "SQLITE_BUSY")
		if !isBusyError {
			return lastErr
		}

		if attempt < maxAttempts {
			logger.Warn().
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Str("delay", delay.String()).
				Str("error", errMsg).
				Msg("Database locked, retrying operation")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	logger.Error().Int("max_attempts", maxAttempts).Err(lastErr).Msg("All retry attempts exhausted")
	return lastErr
}

// AddJobs inserts a new job at initialStage for each organisation number
// not already present. Returns how many rows were actually inserted;
// organisation numbers already known to the store are silently skipped.
func (s *JobStore) AddJobs(ctx context.Context, orgNrs []models.OrgNumber, priority int, initialStage models.Stage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(orgNrs) == 0 {
		return 0, nil
	}

	var inserted int
	err := retryWithExponentialBackoff(ctx, func() error {
		inserted = 0
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO jobs (org_nr, stage, status, priority, attempts, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, strftime('%s','now'), strftime('%s','now'))
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, orgNr := range orgNrs {
			res, err := stmt.ExecContext(ctx, orgNr.String(), string(initialStage), string(models.StatusPending), priority)
			if err != nil {
				return fmt.Errorf("insert job %s: %w", orgNr, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)

	return inserted, err
}

// ClaimNext atomically selects up to batchSize pending jobs at the given
// stage (excluding jobs still in cool-down) and marks them in_progress,
// returning the claimed jobs. The ORDER BY on the idx_jobs_claim index is
// the job store's sole ordering source of truth.
func (s *JobStore) ClaimNext(ctx context.Context, stage models.Stage, batchSize int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []models.Job
	err := retryWithExponentialBackoff(ctx, func() error {
		claimed = nil
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `
			SELECT org_nr, stage, status, priority, attempts, last_attempt, error, cool_down_until, created_at, updated_at
			FROM jobs
			WHERE stage = ? AND status = ?
			  AND (cool_down_until IS NULL OR cool_down_until <= strftime('%s','now'))
			ORDER BY priority DESC, created_at ASC, org_nr ASC
			LIMIT ?
		`, string(stage), string(models.StatusPending), batchSize)
		if err != nil {
			return err
		}

		var orgNrs []string
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, job)
			orgNrs = append(orgNrs, job.OrgNr.String())
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(orgNrs) == 0 {
			return tx.Commit()
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orgNrs)), ",")
		args := make([]interface{}, 0, len(orgNrs)+1)
		args = append(args, string(models.StatusInProgress))
		for _, o := range orgNrs {
			args = append(args, o)
		}

		update := fmt.Sprintf(`
			UPDATE jobs
			SET status = ?, last_attempt = strftime('%%s','now'), updated_at = strftime('%%s','now')
			WHERE org_nr IN (%s)
		`, placeholders)

		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return fmt.Errorf("claim jobs: %w", err)
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)

	for i := range claimed {
		claimed[i].Status = models.StatusInProgress
	}
	return claimed, err
}

// CompleteStage records the stage's output payload and advances the job:
// to the next stage (status reset to pending) if one follows, or to
// StatusCompleted if this was the final stage.
func (s *JobStore) CompleteStage(ctx context.Context, orgNr models.OrgNumber, stage models.Stage, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retryWithExponentialBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stage_payloads (org_nr, stage, payload, written_at)
			VALUES (?, ?, ?, strftime('%s','now'))
			ON CONFLICT(org_nr, stage) DO UPDATE SET payload = excluded.payload, written_at = excluded.written_at
		`, orgNr.String(), string(stage), string(payload)); err != nil {
			return fmt.Errorf("write stage payload: %w", err)
		}

		next, hasNext := models.NextStage(stage)
		var newStage models.Stage
		var newStatus models.Status
		if hasNext {
			newStage = next
			newStatus = models.StatusPending
		} else {
			newStage = stage
			newStatus = models.StatusCompleted
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET stage = ?, status = ?, attempts = 0, error = NULL, cool_down_until = NULL, updated_at = strftime('%s','now')
			WHERE org_nr = ?
		`, string(newStage), string(newStatus), orgNr.String()); err != nil {
			return fmt.Errorf("advance job stage: %w", err)
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)
}

// FailJob increments the attempt counter and records the error. The
// caller (orchestrator) decides, based on the configured max attempts,
// whether to leave it pending for another try or give up.
func (s *JobStore) FailJob(ctx context.Context, orgNr models.OrgNumber, errMsg string, giveUp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.StatusPending
	if giveUp {
		status = models.StatusFailed
	}

	return retryWithExponentialBackoff(ctx, func() error {
		_, err := s.db.Raw().ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, attempts = attempts + 1, error = ?, updated_at = strftime('%s','now')
			WHERE org_nr = ?
		`, string(status), errMsg, orgNr.String())
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

// BlockJob marks a job blocked until cooldownUntil and records a
// block_events row for the host, so repeated blocks are visible to
// `stats` and future host-level backoff decisions.
func (s *JobStore) BlockJob(ctx context.Context, orgNr models.OrgNumber, host, reason string, cooldownUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retryWithExponentialBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, cool_down_until = ?, error = ?, updated_at = strftime('%s','now')
			WHERE org_nr = ?
		`, string(models.StatusBlocked), cooldownUntil.Unix(), reason, orgNr.String()); err != nil {
			return fmt.Errorf("mark job blocked: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO block_events (host, org_nr, reason, detected_at, cooldown_until)
			VALUES (?, ?, ?, strftime('%s','now'), ?)
		`, host, orgNr.String(), reason, cooldownUntil.Unix()); err != nil {
			return fmt.Errorf("record block event: %w", err)
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)
}

// DeferJob sets a job back to Pending with a cool-down until `until`,
// without touching attempts or block_events. It's used for source-side
// backpressure (e.g. a 429 with Retry-After) that isn't an anti-bot
// block: ClaimNext's cool_down_until filter keeps the job out of the
// queue until then, and it resumes at whatever stage it was already on.
func (s *JobStore) DeferJob(ctx context.Context, orgNr models.OrgNumber, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retryWithExponentialBackoff(ctx, func() error {
		_, err := s.db.Raw().ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, cool_down_until = ?, updated_at = strftime('%s','now')
			WHERE org_nr = ?
		`, string(models.StatusPending), until.Unix(), orgNr.String())
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

// ResetBlocked returns blocked jobs whose cool-down has elapsed back to
// pending at their current stage. Called from the orchestrator's
// maintenance sweep.
func (s *JobStore) ResetBlocked(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := retryWithExponentialBackoff(ctx, func() error {
		result, err := s.db.Raw().ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, cool_down_until = NULL, updated_at = strftime('%s','now')
			WHERE status = ? AND cool_down_until IS NOT NULL AND cool_down_until <= strftime('%s','now')
		`, string(models.StatusPending), string(models.StatusBlocked))
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		count = int(n)
		return err
	}, 5, 50*time.Millisecond, s.logger)

	if count > 0 {
		s.logger.Info().Int("count", count).Msg("Reset cooled-down blocked jobs to pending")
	}
	return count, err
}

// ForceResetBlocked resets every currently blocked job back to pending,
// regardless of whether its cool-down has elapsed. Unlike ResetBlocked
// (the maintenance sweep's cooldown-respecting reset), this is an
// explicit operator override for the `reset --blocked` CLI subcommand.
func (s *JobStore) ForceResetBlocked(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := retryWithExponentialBackoff(ctx, func() error {
		result, err := s.db.Raw().ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, cool_down_until = NULL, updated_at = strftime('%s','now')
			WHERE status = ?
		`, string(models.StatusPending), string(models.StatusBlocked))
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		count = int(n)
		return err
	}, 5, 50*time.Millisecond, s.logger)

	if count > 0 {
		s.logger.Info().Int("count", count).Msg("Force-reset blocked jobs to pending")
	}
	return count, err
}

// ResetInProgress returns jobs stuck in_progress past staleTimeout back
// to pending. This is the crash-recovery path: a worker that died
// mid-stage leaves its job claimed forever otherwise.
func (s *JobStore) ResetInProgress(ctx context.Context, staleTimeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-staleTimeout).Unix()

	var count int
	err := retryWithExponentialBackoff(ctx, func() error {
		result, err := s.db.Raw().ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, updated_at = strftime('%s','now')
			WHERE status = ? AND (last_attempt IS NULL OR last_attempt <= ?)
		`, string(models.StatusPending), string(models.StatusInProgress), cutoff)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		count = int(n)
		return err
	}, 5, 50*time.Millisecond, s.logger)

	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("Reset stale in-progress jobs to pending")
	}
	return count, err
}

// GetStagePayload reads the payload a stage wrote for an organisation
// number, if any.
func (s *JobStore) GetStagePayload(ctx context.Context, orgNr models.OrgNumber, stage models.Stage) (models.StagePayload, error) {
	var payload models.StagePayload
	var writtenAt int64
	var raw string

	row := s.db.Raw().QueryRowContext(ctx, `
		SELECT stage, payload, written_at FROM stage_payloads WHERE org_nr = ? AND stage = ?
	`, orgNr.String(), string(stage))

	var stageStr string
	if err := row.Scan(&stageStr, &raw, &writtenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payload, ErrJobNotFound
		}
		return payload, err
	}

	payload.Stage = models.Stage(stageStr)
	payload.Payload = []byte(raw)
	payload.WrittenAt = time.Unix(writtenAt, 0)
	return payload, nil
}

// LogRequest appends one row to the politeness audit trail.
func (s *JobStore) LogRequest(ctx context.Context, orgNr *models.OrgNumber, host, url string, statusCode *int, outcome string, attempt int, durationMs *int) error {
	var orgNrVal interface{}
	if orgNr != nil {
		orgNrVal = orgNr.String()
	}

	_, err := s.db.Raw().ExecContext(ctx, `
		INSERT INTO request_log (org_nr, host, url, status_code, outcome, attempt, duration_ms, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s','now'))
	`, orgNrVal, host, url, statusCode, outcome, attempt, durationMs)
	return err
}

// Stats summarizes the job store's current contents for the `stats` CLI
// subcommand: a count of jobs per (stage, status) pair.
type Stats struct {
	Counts map[models.Stage]map[models.Status]int
	Total  int
}

// Stats computes the current job-count breakdown by stage and status.
func (s *JobStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Counts: make(map[models.Stage]map[models.Status]int)}

	rows, err := s.db.Raw().QueryContext(ctx, `
		SELECT stage, status, COUNT(*) FROM jobs GROUP BY stage, status
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var stageStr, statusStr string
		var count int
		if err := rows.Scan(&stageStr, &statusStr, &count); err != nil {
			return stats, err
		}
		stage := models.Stage(stageStr)
		if stats.Counts[stage] == nil {
			stats.Counts[stage] = make(map[models.Status]int)
		}
		stats.Counts[stage][models.Status(statusStr)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// RequestStats summarizes request_log for the `stats` CLI subcommand's
// politeness-health section.
type RequestStats struct {
	Last60Min      int // requests logged in the trailing 60 minutes
	Last60MinError int // of those, outcomes other than "ok"
	Today          int // requests logged since local midnight
}

// ErrorRate60Min returns the fraction (0..1) of the trailing 60 minutes'
// requests that did not have outcome "ok", or 0 if none were logged.
func (r RequestStats) ErrorRate60Min() float64 {
	if r.Last60Min == 0 {
		return 0
	}
	return float64(r.Last60MinError) / float64(r.Last60Min)
}

// RequestStats computes the trailing-60-minute error rate and today's
// request volume from the politeness audit trail.
func (s *JobStore) RequestStats(ctx context.Context) (RequestStats, error) {
	var stats RequestStats

	row := s.db.Raw().QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN outcome != 'ok' THEN 1 ELSE 0 END)
		FROM request_log
		WHERE requested_at >= strftime('%s','now') - 3600
	`)
	var last60ErrCount sql.NullInt64
	if err := row.Scan(&stats.Last60Min, &last60ErrCount); err != nil {
		return stats, fmt.Errorf("request stats (60min): %w", err)
	}
	stats.Last60MinError = int(last60ErrCount.Int64)

	row = s.db.Raw().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM request_log
		WHERE requested_at >= strftime('%s', 'now', 'start of day')
	`)
	if err := row.Scan(&stats.Today); err != nil {
		return stats, fmt.Errorf("request stats (today): %w", err)
	}

	return stats, nil
}

func scanJob(rows *sql.Rows) (models.Job, error) {
	var job models.Job
	var stageStr, statusStr string
	var lastAttempt, coolDownUntil sql.NullInt64
	var errMsg sql.NullString
	var createdAt, updatedAt int64
	var orgNr string

	if err := rows.Scan(&orgNr, &stageStr, &statusStr, &job.Priority, &job.Attempts,
		&lastAttempt, &errMsg, &coolDownUntil, &createdAt, &updatedAt); err != nil {
		return job, err
	}

	job.OrgNr = models.OrgNumber(orgNr)
	job.Stage = models.Stage(stageStr)
	job.Status = models.Status(statusStr)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	if lastAttempt.Valid {
		t := time.Unix(lastAttempt.Int64, 0)
		job.LastAttempt = &t
	}
	if coolDownUntil.Valid {
		t := time.Unix(coolDownUntil.Int64, 0)
		job.CoolDownUntil = &t
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return job, nil
}
