// Package models defines the data structures (structs) shared across the application.
// this package has no imports from other internal packages, making it the
// foundation of the dependency graph. other packages (db, handlers, pipeline, trigger) import from it.
package models

import (
	"path/filepath"
	"time"
)

/*
BuildStatus and RemoteImageStrategy are both string under the hood, but giving them their own type
means the compiler rejects `build.Status = "typo"` at every call site that expects the named type.
*/

// BuildStatus represents the current lifecycle state of a build.
type BuildStatus string

const (
	// StatusQueued means the build is waiting for the worker to pick it up.
	// a project holds at most one queued build at a time (see db.ScheduleBuild).
	StatusQueued BuildStatus = "queued"

	// StatusRunning means the worker claimed the build and the spoon commands are executing
	StatusRunning BuildStatus = "running"

	// StatusSucceeded means the build and every enabled publisher completed
	StatusSucceeded BuildStatus = "succeeded"

	// StatusFailed means a step failed. the reason is in Build.Error and the build log
	StatusFailed BuildStatus = "failed"
)

// CauseKind says what started a build.
type CauseKind string

const (
	// CausePush is a build started by a webhook push event
	CausePush CauseKind = "push"

	// CauseManual is a build started through the API
	CauseManual CauseKind = "manual"
)

// RemoteImageStrategy selects how the push publisher names the remote image.
type RemoteImageStrategy string

const (
	// RemoteImageNone pushes under the local image name
	RemoteImageNone RemoteImageStrategy = "none"

	// RemoteImageGenerate derives "<org>/<project>:<branch>.<head>" from the push cause,
	// or from the workspace's git metadata when the build was not started by a push
	RemoteImageGenerate RemoteImageStrategy = "generate"

	// RemoteImageFixed uses a configured name, optionally with the build start date appended
	RemoteImageFixed RemoteImageStrategy = "fixed"
)

// MountSettings is the optional --mount of the build step.
type MountSettings struct {
	SourceContainer string `json:"source_container,omitempty" toml:"source_container" yaml:"source_container"`
	SourceFolder    string `json:"source_folder" toml:"source_folder" yaml:"source_folder"`
	TargetFolder    string `json:"target_folder" toml:"target_folder" yaml:"target_folder"`
}

// PushSettings configures the push publisher. nil on a project means no push.
type PushSettings struct {
	Strategy RemoteImageStrategy `json:"strategy" toml:"strategy" yaml:"strategy"`

	// Organization overrides the repository organization for the generate strategy.
	// empty keeps the repository's own organization
	Organization string `json:"organization,omitempty" toml:"organization" yaml:"organization"`

	// RemoteImageName is the fixed strategy's remote name
	RemoteImageName string `json:"remote_image_name,omitempty" toml:"remote_image_name" yaml:"remote_image_name"`

	// DateFormat is a Go time layout (eg "20060102"). when set, the build start
	// time formatted with it is appended to RemoteImageName
	DateFormat string `json:"date_format,omitempty" toml:"date_format" yaml:"date_format"`
}

/*
Project is a build definition: where the script is, how to build it, what to publish,
and which repository's pushes trigger it.
it maps 1:1 to the projects table in SQLite. the mount and push settings are stored as
JSON text columns since nothing queries into them.
*/
type Project struct {
	// ID is a UUID v4, generated at creation time, used as the primary key
	ID string `json:"id" toml:"id" yaml:"id"`

	// Name is the human readable and unique project name used in logs
	Name string `json:"name" toml:"name" yaml:"name"`

	// RepositoryURL is the trigger binding. pushes to this repository (compared
	// case-insensitively) schedule a build. empty means the project is only built manually
	RepositoryURL string `json:"repository_url,omitempty" toml:"repository_url" yaml:"repository_url"`

	// Workspace is the directory the build runs in. a relative ScriptPath is resolved against it,
	// and the generate strategy reads the git metadata of a checkout here
	Workspace string `json:"workspace" toml:"workspace" yaml:"workspace"`

	// ScriptPath is the spoon build script, absolute or relative to Workspace (required)
	ScriptPath string `json:"script_path" toml:"script_path" yaml:"script_path"`

	// the next fields map onto the options of `spoon build`
	ImageName           string         `json:"image_name,omitempty" toml:"image_name" yaml:"image_name"`
	VMVersion           string         `json:"vm_version,omitempty" toml:"vm_version" yaml:"vm_version"`
	ContainerWorkingDir string         `json:"container_working_dir,omitempty" toml:"container_working_dir" yaml:"container_working_dir"`
	Mount               *MountSettings `json:"mount,omitempty" toml:"mount" yaml:"mount"`
	Overwrite           bool           `json:"overwrite" toml:"overwrite" yaml:"overwrite"`
	NoBase              bool           `json:"no_base" toml:"no_base" yaml:"no_base"`
	Diagnostic          bool           `json:"diagnostic" toml:"diagnostic" yaml:"diagnostic"`

	// LoginUser and LoginPasswordEnv enable `spoon login` before the build.
	// the password itself is never stored, only the name of the environment
	// variable it is read from at build time
	LoginUser        string `json:"login_user,omitempty" toml:"login_user" yaml:"login_user"`
	LoginPasswordEnv string `json:"login_password_env,omitempty" toml:"login_password_env" yaml:"login_password_env"`

	// Push is nil when the built image is not pushed
	Push *PushSettings `json:"push,omitempty" toml:"push" yaml:"push"`

	// ExportDirectory is an existing directory the built image is exported to, absolute or
	// relative to Workspace. empty disables export
	ExportDirectory string `json:"export_directory,omitempty" toml:"export_directory" yaml:"export_directory"`

	// RemoveImage removes the built image from the local repository once publishing finished
	RemoveImage bool `json:"remove_image" toml:"remove_image" yaml:"remove_image"`

	CreatedAt time.Time `json:"created_at" toml:"-" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" toml:"-" yaml:"-"`
}

// ResolveInWorkspace joins a relative path onto the workspace.
// empty and absolute paths, and any path of a project without a workspace, are returned unchanged.
func (project Project) ResolveInWorkspace(path string) string {
	if path == "" || filepath.IsAbs(path) || project.Workspace == "" {
		return path
	}
	return filepath.Join(project.Workspace, path)
}

// TriggerBinding is the part of a project the dispatcher needs: who to schedule
// and which repository's pushes they listen to.
type TriggerBinding struct {
	ProjectID     string `json:"project_id"`
	ProjectName   string `json:"project_name"`
	RepositoryURL string `json:"repository_url"`
}

// BuildCause is the raw push event a build was started from.
// it is kept as the original strings so the pipeline can parse it again with git.NewPushCause.
type BuildCause struct {
	RepositoryURL string `json:"repository_url"`
	Pusher        string `json:"pusher"`
	Ref           string `json:"ref"`
	Head          string `json:"head"`
}

/*
Build is one execution of a project. it maps 1:1 to the builds table.
pointer fields are nil until the pipeline reaches the step that fills them.
*/
type Build struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	Status      BuildStatus `json:"status"`
	CauseKind   CauseKind   `json:"cause_kind"`
	Description string      `json:"description"`

	// Cause is set for push builds only
	Cause *BuildCause `json:"cause,omitempty"`

	// ToolVersion is what `spoon version` reported at the start of the build
	ToolVersion *string `json:"tool_version,omitempty"`

	// BuiltImage is the local image name extracted from the build output
	BuiltImage *string `json:"built_image,omitempty"`

	// RemoteImage is the name the image was pushed under, when push is configured
	RemoteImage *string `json:"remote_image,omitempty"`

	// Error is the failure reason of a failed build
	Error *string `json:"error,omitempty"`

	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
