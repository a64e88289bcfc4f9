package db

// projects.go contains the SQL query functions for the projects table.
// raw SQL keeps the query layer explicit and readable next to the schema in db.go.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/sasta-kro/spoon-trigger/models"
)

// ErrDuplicateName is returned when another project already uses the name.
var ErrDuplicateName = errors.New("project name is already taken")

// ErrBuildRunning is returned when a project cannot be deleted because one of its builds is running.
var ErrBuildRunning = errors.New("project has a running build")

const projectColumns = `
	id, name, repository_url, workspace, script_path,
	image_name, vm_version, container_working_dir, mount,
	overwrite, no_base, diagnostic,
	login_user, login_password_env, push,
	export_directory, remove_image, created_at, updated_at
`

// InsertProject writes a new project row. an empty ID is filled with a new UUID.
// CreatedAt and UpdatedAt are set here so callers never manage record metadata.
func (database *Database) InsertProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.New().String()
	}

	mount, err := encodeJSONColumn(project.Mount)
	if err != nil {
		return fmt.Errorf("failed to encode mount of project %q: %w", project.Name, err)
	}
	push, err := encodeJSONColumn(project.Push)
	if err != nil {
		return fmt.Errorf("failed to encode push settings of project %q: %w", project.Name, err)
	}

	query := `INSERT INTO projects (` + projectColumns + `) VALUES (
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?,
		?, ?, ?, ?
	)`

	timeNow := time.Now().UTC()
	project.CreatedAt = timeNow
	project.UpdatedAt = timeNow

	_, err = database.connection.ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.RepositoryURL,
		project.Workspace,
		project.ScriptPath,
		project.ImageName,
		project.VMVersion,
		project.ContainerWorkingDir,
		mount, // *string, nil inserts NULL
		project.Overwrite,
		project.NoBase,
		project.Diagnostic,
		project.LoginUser,
		project.LoginPasswordEnv,
		push, // *string, nil inserts NULL
		project.ExportDirectory,
		project.RemoveImage,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, project.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert project %q: %w", project.Name, err)
	}
	return nil
}

// UpdateProject overwrites every setting of an existing project. ID and CreatedAt are kept.
func (database *Database) UpdateProject(ctx context.Context, project *models.Project) error {
	mount, err := encodeJSONColumn(project.Mount)
	if err != nil {
		return fmt.Errorf("failed to encode mount of project %q: %w", project.Name, err)
	}
	push, err := encodeJSONColumn(project.Push)
	if err != nil {
		return fmt.Errorf("failed to encode push settings of project %q: %w", project.Name, err)
	}

	query := `
		UPDATE projects SET
			name = ?, repository_url = ?, workspace = ?, script_path = ?,
			image_name = ?, vm_version = ?, container_working_dir = ?, mount = ?,
			overwrite = ?, no_base = ?, diagnostic = ?,
			login_user = ?, login_password_env = ?, push = ?,
			export_directory = ?, remove_image = ?, updated_at = ?
		WHERE id = ?
	`

	project.UpdatedAt = time.Now().UTC()

	result, err := database.connection.ExecContext(ctx, query,
		project.Name,
		project.RepositoryURL,
		project.Workspace,
		project.ScriptPath,
		project.ImageName,
		project.VMVersion,
		project.ContainerWorkingDir,
		mount,
		project.Overwrite,
		project.NoBase,
		project.Diagnostic,
		project.LoginUser,
		project.LoginPasswordEnv,
		push,
		project.ExportDirectory,
		project.RemoveImage,
		project.UpdatedAt,
		project.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, project.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update project %q: %w", project.ID, err)
	}
	return checkRowsAffected(result, "project", project.ID)
}

// UpsertProject inserts the project, or updates the project that already has its name.
// used to seed projects from the projects file on every startup.
func (database *Database) UpsertProject(ctx context.Context, project *models.Project) (created bool, err error) {
	existing, err := database.GetProjectByName(ctx, project.Name)
	if errors.Is(err, ErrRecordNotFound) {
		return true, database.InsertProject(ctx, project)
	}
	if err != nil {
		return false, err
	}

	project.ID = existing.ID
	project.CreatedAt = existing.CreatedAt
	return false, database.UpdateProject(ctx, project)
}

// GetProject fetches a single project by its UUID.
// returns ErrRecordNotFound if no row matches.
func (database *Database) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	project, err := scanProject(database.connection.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %q: %w", id, err)
	}
	return project, nil
}

// GetProjectByName fetches a single project by its unique name.
func (database *Database) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE name = ?`

	project, err := scanProject(database.connection.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project named %q: %w", name, err)
	}
	return project, nil
}

// ListProjects returns every project ordered by name.
func (database *Database) ListProjects(ctx context.Context) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name`

	rows, err := database.connection.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	// rows holds its connection until closed. with MaxOpenConns(1) a leaked
	// rows value would block every other query.
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// DeleteProject removes a project and its build history in one transaction and returns
// the IDs of the deleted builds, so their log files can be removed too.
// a project with a running build is refused with ErrBuildRunning.
func (database *Database) DeleteProject(ctx context.Context, id string) ([]string, error) {
	tx, err := database.connection.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for project %q: %w", id, err)
	}
	// Rollback after Commit is a no-op
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, status FROM builds WHERE project_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds of project %q: %w", id, err)
	}
	defer rows.Close()

	var buildIDs []string
	for rows.Next() {
		var buildID string
		var status models.BuildStatus
		if err := rows.Scan(&buildID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan build of project %q: %w", id, err)
		}
		if status == models.StatusRunning {
			return nil, fmt.Errorf("%w: build %s", ErrBuildRunning, buildID)
		}
		buildIDs = append(buildIDs, buildID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds of project %q: %w", id, err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE project_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete builds of project %q: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete project %q: %w", id, err)
	}
	if err := checkRowsAffected(result, "project", id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deletion of project %q: %w", id, err)
	}
	return buildIDs, nil
}

// AllBindings lists the trigger binding of every project that names a repository.
// projects without a repository URL are only built manually and are left out.
func (database *Database) AllBindings(ctx context.Context) ([]models.TriggerBinding, error) {
	query := `
		SELECT id, name, repository_url
		FROM projects
		WHERE repository_url != ''
		ORDER BY name
	`

	rows, err := database.connection.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger bindings: %w", err)
	}
	defer rows.Close()

	var bindings []models.TriggerBinding
	for rows.Next() {
		var binding models.TriggerBinding
		if err := rows.Scan(&binding.ProjectID, &binding.ProjectName, &binding.RepositoryURL); err != nil {
			return nil, fmt.Errorf("failed to scan trigger binding row: %w", err)
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trigger binding rows: %w", err)
	}

	return bindings, nil
}

// scanProject reads a single row selected with projectColumns into a Project.
func scanProject(row scanner) (*models.Project, error) {
	var project models.Project
	var mount, push sql.NullString

	err := row.Scan(
		&project.ID,
		&project.Name,
		&project.RepositoryURL,
		&project.Workspace,
		&project.ScriptPath,
		&project.ImageName,
		&project.VMVersion,
		&project.ContainerWorkingDir,
		&mount,             // NULL -> Valid false
		&project.Overwrite, // INTEGER 0/1 -> bool
		&project.NoBase,
		&project.Diagnostic,
		&project.LoginUser,
		&project.LoginPasswordEnv,
		&push,
		&project.ExportDirectory,
		&project.RemoveImage,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if project.Mount, err = decodeJSONColumn[models.MountSettings](mount); err != nil {
		return nil, fmt.Errorf("failed to decode mount of project %q: %w", project.ID, err)
	}
	if project.Push, err = decodeJSONColumn[models.PushSettings](push); err != nil {
		return nil, fmt.Errorf("failed to decode push settings of project %q: %w", project.ID, err)
	}

	return &project, nil
}

// encodeJSONColumn turns an optional struct into a nullable JSON text column.
func encodeJSONColumn[T any](value *T) (*string, error) {
	if value == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	text := string(encoded)
	return &text, nil
}

func decodeJSONColumn[T any](column sql.NullString) (*T, error) {
	if !column.Valid {
		return nil, nil
	}
	var value T
	if err := json.Unmarshal([]byte(column.String), &value); err != nil {
		return nil, err
	}
	return &value, nil
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate value of a UNIQUE column.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
