package db

// builds.go contains the SQL query functions for the builds table: scheduling
// with coalescing, claiming by the worker, and recording step results.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/models"
)

const buildColumns = `
	id, project_id, status, cause_kind, description, cause,
	tool_version, built_image, remote_image, error,
	queued_at, started_at, finished_at
`

// EnqueueBuild queues a build for the project unless one is already waiting.
// when a queued build exists it is returned with scheduled == false and nothing is inserted.
// returns ErrRecordNotFound when the project does not exist.
func (database *Database) EnqueueBuild(
	ctx context.Context,
	projectID string,
	kind models.CauseKind,
	description string,
	cause *models.BuildCause,
) (build *models.Build, scheduled bool, err error) {
	encodedCause, err := encodeJSONColumn(cause)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode cause of build for project %q: %w", projectID, err)
	}

	tx, err := database.connection.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction for project %q: %w", projectID, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrRecordNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up project %q: %w", projectID, err)
	}

	queuedQuery := `SELECT ` + buildColumns + ` FROM builds WHERE project_id = ? AND status = ? LIMIT 1`
	waiting, err := scanBuild(tx.QueryRowContext(ctx, queuedQuery, projectID, models.StatusQueued))
	if err == nil {
		return waiting, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check queued builds of project %q: %w", projectID, err)
	}

	build = &models.Build{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Status:      models.StatusQueued,
		CauseKind:   kind,
		Description: description,
		Cause:       cause,
		QueuedAt:    time.Now().UTC(),
	}

	insertQuery := `
		INSERT INTO builds (id, project_id, status, cause_kind, description, cause, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insertQuery,
		build.ID,
		build.ProjectID,
		build.Status,
		build.CauseKind,
		build.Description,
		encodedCause,
		build.QueuedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert build for project %q: %w", projectID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit build for project %q: %w", projectID, err)
	}
	return build, true, nil
}

// ScheduleBuild queues a push build for the binding's project.
// false means the push was folded into a build that was already queued.
func (database *Database) ScheduleBuild(ctx context.Context, binding models.TriggerBinding, cause git.PushCause) (bool, error) {
	buildCause := &models.BuildCause{
		RepositoryURL: cause.Repository.URL,
		Pusher:        cause.Pusher,
		Ref:           cause.Branch.Name,
		Head:          cause.Branch.Head,
	}

	_, scheduled, err := database.EnqueueBuild(ctx, binding.ProjectID, models.CausePush, cause.Description(), buildCause)
	if err != nil {
		return false, err
	}
	return scheduled, nil
}

// ClaimNextQueuedBuild moves the oldest queued build to running and returns it.
// returns ErrRecordNotFound when nothing is queued.
func (database *Database) ClaimNextQueuedBuild(ctx context.Context) (*models.Build, error) {
	tx, err := database.connection.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction to claim a build: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + buildColumns + ` FROM builds WHERE status = ? ORDER BY queued_at, id LIMIT 1`
	build, err := scanBuild(tx.QueryRowContext(ctx, query, models.StatusQueued))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select the next queued build: %w", err)
	}

	startedAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE builds SET status = ?, started_at = ? WHERE id = ?`,
		models.StatusRunning, startedAt, build.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim build %q: %w", build.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim of build %q: %w", build.ID, err)
	}

	build.Status = models.StatusRunning
	build.StartedAt = &startedAt
	return build, nil
}

// RecordToolVersion stores what `spoon version` reported for the build.
func (database *Database) RecordToolVersion(ctx context.Context, id string, version string) error {
	return database.setBuildColumn(ctx, id, "tool_version", version)
}

// RecordBuiltImage stores the image name extracted from the build output.
func (database *Database) RecordBuiltImage(ctx context.Context, id string, image string) error {
	return database.setBuildColumn(ctx, id, "built_image", image)
}

// RecordRemoteImage stores the name the image was pushed under.
func (database *Database) RecordRemoteImage(ctx context.Context, id string, remoteImage string) error {
	return database.setBuildColumn(ctx, id, "remote_image", remoteImage)
}

// setBuildColumn is only called with the column names above, never with input.
func (database *Database) setBuildColumn(ctx context.Context, id string, column string, value string) error {
	query := fmt.Sprintf(`UPDATE builds SET %s = ? WHERE id = ?`, column)

	result, err := database.connection.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to set %s of build %q: %w", column, id, err)
	}
	return checkRowsAffected(result, "build", id)
}

// FinishBuild sets the final status and finished_at. failure is stored as the
// error column and should be empty for a successful build.
func (database *Database) FinishBuild(ctx context.Context, id string, status models.BuildStatus, failure string) error {
	var errorColumn *string
	if failure != "" {
		errorColumn = &failure
	}

	result, err := database.connection.ExecContext(ctx,
		`UPDATE builds SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errorColumn, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish build %q: %w", id, err)
	}
	return checkRowsAffected(result, "build", id)
}

// FailInterruptedBuilds marks builds left running by a previous process as failed.
// called once at startup, before the worker starts claiming.
func (database *Database) FailInterruptedBuilds(ctx context.Context) (int64, error) {
	result, err := database.connection.ExecContext(ctx,
		`UPDATE builds SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		models.StatusFailed, "interrupted by a restart", time.Now().UTC(), models.StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted builds: %w", err)
	}
	return result.RowsAffected()
}

// ListExpiredBuilds returns the finished builds (succeeded or failed) that finished before cutoff,
// oldest first. queued and running builds never expire.
func (database *Database) ListExpiredBuilds(ctx context.Context, cutoff time.Time) ([]*models.Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds
		WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?
		ORDER BY finished_at`

	rows, err := database.connection.QueryContext(ctx, query, models.StatusSucceeded, models.StatusFailed, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired builds: %w", err)
	}
	defer rows.Close()

	var builds []*models.Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired build row: %w", err)
		}
		builds = append(builds, build)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired build rows: %w", err)
	}
	return builds, nil
}

// DeleteBuild removes a build record. returns ErrRecordNotFound if no row matches.
func (database *Database) DeleteBuild(ctx context.Context, id string) error {
	result, err := database.connection.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete build %q: %w", id, err)
	}
	return checkRowsAffected(result, "build", id)
}

// GetBuild fetches a single build by its UUID.
func (database *Database) GetBuild(ctx context.Context, id string) (*models.Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE id = ?`

	build, err := scanBuild(database.connection.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build %q: %w", id, err)
	}
	return build, nil
}

// ListBuilds returns the most recent builds first, all projects when projectID is empty.
func (database *Database) ListBuilds(ctx context.Context, projectID string, limit int) ([]*models.Build, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + buildColumns + ` FROM builds`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY queued_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := database.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	builds := []*models.Build{}
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build row: %w", err)
		}
		builds = append(builds, build)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating build rows: %w", err)
	}

	return builds, nil
}

// scanBuild reads a single row selected with buildColumns into a Build.
// nullable columns are scanned straight into pointer fields, NULL becomes nil.
func scanBuild(row scanner) (*models.Build, error) {
	var build models.Build
	var cause sql.NullString

	err := row.Scan(
		&build.ID,
		&build.ProjectID,
		&build.Status,
		&build.CauseKind,
		&build.Description,
		&cause,
		&build.ToolVersion,
		&build.BuiltImage,
		&build.RemoteImage,
		&build.Error,
		&build.QueuedAt,
		&build.StartedAt,
		&build.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if build.Cause, err = decodeJSONColumn[models.BuildCause](cause); err != nil {
		return nil, fmt.Errorf("failed to decode cause of build %q: %w", build.ID, err)
	}
	return &build, nil
}
