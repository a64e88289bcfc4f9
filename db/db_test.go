package db_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sasta-kro/spoon-trigger/db"
	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/models"
)

func openTestDatabase(t *testing.T) *db.Database {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "nested", "test.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.CloseDatabase() })
	return database
}

func insertProject(t *testing.T, database *db.Database, name string, repositoryURL string) *models.Project {
	t.Helper()
	project := &models.Project{
		Name:          name,
		RepositoryURL: repositoryURL,
		Workspace:     "/srv/workspaces/" + name,
		ScriptPath:    "build.me",
		Mount:         &models.MountSettings{SourceFolder: "C:\\src", TargetFolder: "C:\\dst"},
		Push:          &models.PushSettings{Strategy: models.RemoteImageGenerate, Organization: "acme"},
		Overwrite:     true,
	}
	if err := database.InsertProject(context.Background(), project); err != nil {
		t.Fatalf("failed to insert project: %v", err)
	}
	return project
}

func TestProjects_InsertAndGet(t *testing.T) {
	database := openTestDatabase(t)
	inserted := insertProject(t, database, "app", "https://github.com/acme/app")

	if inserted.ID == "" {
		t.Fatal("expected InsertProject to assign an ID")
	}

	project, err := database.GetProject(context.Background(), inserted.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.Name != "app" || !project.Overwrite || project.NoBase {
		t.Errorf("unexpected project %+v", project)
	}
	if project.Mount == nil || project.Mount.TargetFolder != "C:\\dst" {
		t.Errorf("expected mount to round trip, got %+v", project.Mount)
	}
	if project.Push == nil || project.Push.Strategy != models.RemoteImageGenerate {
		t.Errorf("expected push settings to round trip, got %+v", project.Push)
	}
	if project.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestProjects_NotFound(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()

	if _, err := database.GetProject(ctx, "missing"); !errors.Is(err, db.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := database.DeleteProject(ctx, "missing"); !errors.Is(err, db.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on delete, got %v", err)
	}
	if err := database.UpdateProject(ctx, &models.Project{ID: "missing", Name: "x"}); !errors.Is(err, db.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on update, got %v", err)
	}
}

func TestProjects_UpsertKeepsID(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	original := insertProject(t, database, "app", "https://github.com/acme/app")

	seeded := &models.Project{Name: "app", Workspace: "/srv/other", ScriptPath: "other.me"}
	created, err := database.UpsertProject(ctx, seeded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected an update of the existing project")
	}
	if seeded.ID != original.ID {
		t.Errorf("expected id %s to be kept, got %s", original.ID, seeded.ID)
	}

	project, _ := database.GetProject(ctx, original.ID)
	if project.Workspace != "/srv/other" || project.Mount != nil || project.Push != nil {
		t.Errorf("expected settings to be replaced, got %+v", project)
	}

	created, err = database.UpsertProject(ctx, &models.Project{Name: "new", Workspace: "/w", ScriptPath: "s"})
	if err != nil || !created {
		t.Errorf("expected new project to be created, got %v, %v", created, err)
	}
}

func TestProjects_ListAndBindings(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	insertProject(t, database, "zeta", "https://github.com/acme/zeta")
	insertProject(t, database, "alpha", "https://github.com/acme/alpha")
	insertProject(t, database, "manual", "")

	projects, err := database.ListProjects(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 3 || projects[0].Name != "alpha" {
		t.Errorf("expected 3 projects sorted by name, got %d", len(projects))
	}

	bindings, err := database.AllBindings(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %+v", bindings)
	}
	if bindings[0].ProjectName != "alpha" || bindings[1].RepositoryURL != "https://github.com/acme/zeta" {
		t.Errorf("unexpected bindings %+v", bindings)
	}
}

func TestBuilds_ScheduleCoalesces(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	project := insertProject(t, database, "app", "https://github.com/acme/app")
	binding := models.TriggerBinding{ProjectID: project.ID, ProjectName: project.Name, RepositoryURL: project.RepositoryURL}

	cause, err := git.NewPushCause("https://github.com/acme/app", "octocat", "refs/heads/main", "0123456789abcdef0123456789abcdef01234567")
	if err != nil {
		t.Fatal(err)
	}

	scheduled, err := database.ScheduleBuild(ctx, binding, cause)
	if err != nil || !scheduled {
		t.Fatalf("expected first push to schedule, got %v, %v", scheduled, err)
	}
	scheduled, err = database.ScheduleBuild(ctx, binding, cause)
	if err != nil || scheduled {
		t.Fatalf("expected second push to coalesce, got %v, %v", scheduled, err)
	}

	builds, err := database.ListBuilds(ctx, project.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(builds) != 1 {
		t.Fatalf("expected exactly one queued build, got %d", len(builds))
	}
	build := builds[0]
	if build.CauseKind != models.CausePush || build.Cause == nil || build.Cause.Head != cause.Branch.Head {
		t.Errorf("unexpected build %+v", build)
	}
	if build.Description != cause.Description() {
		t.Errorf("expected description %q, got %q", cause.Description(), build.Description)
	}
}

func TestBuilds_EnqueueUnknownProject(t *testing.T) {
	database := openTestDatabase(t)

	_, _, err := database.EnqueueBuild(context.Background(), "missing", models.CauseManual, "Started manually", nil)
	if !errors.Is(err, db.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestBuilds_ClaimLifecycle(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	project := insertProject(t, database, "app", "")

	if _, err := database.ClaimNextQueuedBuild(ctx); !errors.Is(err, db.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound on empty queue, got %v", err)
	}

	queued, _, err := database.EnqueueBuild(ctx, project.ID, models.CauseManual, "Started manually", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claimed, err := database.ClaimNextQueuedBuild(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed.ID != queued.ID || claimed.Status != models.StatusRunning || claimed.StartedAt == nil {
		t.Errorf("unexpected claimed build %+v", claimed)
	}

	// a running build no longer blocks a new queued one
	if _, scheduled, _ := database.EnqueueBuild(ctx, project.ID, models.CauseManual, "again", nil); !scheduled {
		t.Error("expected a new build to be queued while the first one runs")
	}

	if err := database.RecordToolVersion(ctx, claimed.ID, "3.33.8.478"); err != nil {
		t.Fatal(err)
	}
	if err := database.RecordBuiltImage(ctx, claimed.ID, "acme/app:1"); err != nil {
		t.Fatal(err)
	}
	if err := database.RecordRemoteImage(ctx, claimed.ID, "acme/app:main.012345"); err != nil {
		t.Fatal(err)
	}
	if err := database.FinishBuild(ctx, claimed.ID, models.StatusSucceeded, ""); err != nil {
		t.Fatal(err)
	}

	finished, err := database.GetBuild(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if finished.Status != models.StatusSucceeded || finished.Error != nil || finished.FinishedAt == nil {
		t.Errorf("unexpected finished build %+v", finished)
	}
	if finished.BuiltImage == nil || *finished.BuiltImage != "acme/app:1" {
		t.Errorf("expected built image, got %v", finished.BuiltImage)
	}
	if finished.ToolVersion == nil || *finished.ToolVersion != "3.33.8.478" {
		t.Errorf("expected tool version, got %v", finished.ToolVersion)
	}
}

func TestBuilds_FailInterrupted(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	project := insertProject(t, database, "app", "")

	database.EnqueueBuild(ctx, project.ID, models.CauseManual, "Started manually", nil)
	claimed, err := database.ClaimNextQueuedBuild(ctx)
	if err != nil {
		t.Fatal(err)
	}

	count, err := database.FailInterruptedBuilds(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected one interrupted build, got %d, %v", count, err)
	}

	build, _ := database.GetBuild(ctx, claimed.ID)
	if build.Status != models.StatusFailed || build.Error == nil {
		t.Errorf("expected failed build with error, got %+v", build)
	}
}

func TestProjects_DeleteRemovesBuilds(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	project := insertProject(t, database, "app", "")
	build, _, err := database.EnqueueBuild(ctx, project.ID, models.CauseManual, "Started manually", nil)
	if err != nil {
		t.Fatal(err)
	}

	deletedBuildIDs, err := database.DeleteProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deletedBuildIDs) != 1 || deletedBuildIDs[0] != build.ID {
		t.Errorf("expected the deleted build ID to be returned, got %v", deletedBuildIDs)
	}
	if _, err := database.GetBuild(ctx, build.ID); !errors.Is(err, db.ErrRecordNotFound) {
		t.Errorf("expected build to be deleted with its project, got %v", err)
	}
}

func TestProjects_DeleteRefusedWhileRunning(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	project := insertProject(t, database, "app", "")
	if _, _, err := database.EnqueueBuild(ctx, project.ID, models.CauseManual, "Started manually", nil); err != nil {
		t.Fatal(err)
	}
	running, err := database.ClaimNextQueuedBuild(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := database.DeleteProject(ctx, project.ID); !errors.Is(err, db.ErrBuildRunning) {
		t.Fatalf("expected ErrBuildRunning, got %v", err)
	}

	// the running build keeps its row, so the pipeline can still finish it
	if err := database.FinishBuild(ctx, running.ID, models.StatusSucceeded, ""); err != nil {
		t.Fatalf("expected the build to be finishable, got %v", err)
	}
	if _, err := database.DeleteProject(ctx, project.ID); err != nil {
		t.Errorf("expected delete to succeed once the build finished, got %v", err)
	}
}

func TestProjects_DuplicateName(t *testing.T) {
	database := openTestDatabase(t)
	insertProject(t, database, "app", "")
	other := insertProject(t, database, "other", "")

	err := database.InsertProject(context.Background(), &models.Project{Name: "app", Workspace: "/w", ScriptPath: "s"})
	if !errors.Is(err, db.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName on insert, got %v", err)
	}

	other.Name = "app"
	if err := database.UpdateProject(context.Background(), other); !errors.Is(err, db.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName on update, got %v", err)
	}
}

func TestPing(t *testing.T) {
	database := openTestDatabase(t)
	if err := database.Ping(context.Background()); err != nil {
		t.Errorf("expected ping to succeed, got %v", err)
	}
}

func TestBuilds_ExpireAndDelete(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	project := insertProject(t, database, "app", "")

	finished, _, err := database.EnqueueBuild(ctx, project.ID, models.CauseManual, "first", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := database.ClaimNextQueuedBuild(ctx); err != nil {
		t.Fatal(err)
	}
	if err := database.FinishBuild(ctx, finished.ID, models.StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	queued, _, err := database.EnqueueBuild(ctx, project.ID, models.CauseManual, "second", nil)
	if err != nil {
		t.Fatal(err)
	}

	expired, err := database.ListExpiredBuilds(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != finished.ID {
		t.Fatalf("expected only the finished build to expire, got %+v", expired)
	}

	if expired, _ := database.ListExpiredBuilds(ctx, time.Now().Add(-time.Hour)); len(expired) != 0 {
		t.Errorf("expected nothing to expire before the build finished, got %d", len(expired))
	}

	if err := database.DeleteBuild(ctx, finished.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := database.DeleteBuild(ctx, finished.ID); !errors.Is(err, db.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on second delete, got %v", err)
	}
	if _, err := database.GetBuild(ctx, queued.ID); err != nil {
		t.Errorf("expected the queued build to survive, got %v", err)
	}
}
