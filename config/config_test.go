package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sasta-kro/spoon-trigger/config"
	"github.com/sasta-kro/spoon-trigger/models"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SPOON_EXECUTOR", "WORKER_POLL_INTERVAL", "HOOK_URL"} {
		t.Setenv(key, "")
	}

	appConfig, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if appConfig.Port != "8080" {
		t.Errorf("expected port 8080, got %q", appConfig.Port)
	}
	if appConfig.SpoonExecutor != config.ExecutorProcess {
		t.Errorf("expected process executor, got %q", appConfig.SpoonExecutor)
	}
	if appConfig.WorkerPollInterval != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %s", appConfig.WorkerPollInterval)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown executor", map[string]string{"SPOON_EXECUTOR": "ssh"}, "invalid SPOON_EXECUTOR"},
		{"docker without image", map[string]string{"SPOON_EXECUTOR": "docker", "SPOON_EXECUTOR_IMAGE": ""}, "SPOON_EXECUTOR_IMAGE is required"},
		{"bad duration", map[string]string{"WORKER_POLL_INTERVAL": "often"}, "invalid WORKER_POLL_INTERVAL"},
		{"negative duration", map[string]string{"WORKER_POLL_INTERVAL": "-1s"}, "must be positive"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("SPOON_EXECUTOR", "")
			t.Setenv("WORKER_POLL_INTERVAL", "")
			for key, value := range test.env {
				t.Setenv(key, value)
			}

			_, err := config.Load()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("expected error containing %q, got %v", test.want, err)
			}
		})
	}
}

func TestLoad_DockerExecutor(t *testing.T) {
	t.Setenv("SPOON_EXECUTOR", "docker")
	t.Setenv("SPOON_EXECUTOR_IMAGE", "spoon/cli:latest")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")

	appConfig, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if appConfig.SpoonExecutorImage != "spoon/cli:latest" {
		t.Errorf("expected executor image, got %q", appConfig.SpoonExecutorImage)
	}
	if appConfig.WorkerPollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", appConfig.WorkerPollInterval)
	}
}

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const tomlProjects = `
[[projects]]
name = "web"
repository_url = "https://github.com/acme/web.git"
workspace = "web"
script_path = "build/app.me"
image_name = "acme/web"
remove_image = true

[projects.push]
strategy = "generate"
organization = "mirror"

[[projects]]
name = "tools"
workspace = "/srv/tools"
script_path = "/srv/tools/spoon.me"
export_directory = "out"

[projects.mount]
source_folder = "/data"
target_folder = "C:\\data"
`

func TestLoadProjects_TOML(t *testing.T) {
	path := writeFile(t, "projects.toml", tomlProjects)

	projects, err := config.LoadProjects(path, "/workspaces")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}

	web := projects[0]
	if web.Workspace != filepath.Join("/workspaces", "web") {
		t.Errorf("expected relative workspace joined onto the root, got %q", web.Workspace)
	}
	if web.Push == nil || web.Push.Strategy != models.RemoteImageGenerate || web.Push.Organization != "mirror" {
		t.Errorf("expected generate push settings, got %+v", web.Push)
	}
	if !web.RemoveImage {
		t.Error("expected remove_image to be true")
	}

	tools := projects[1]
	if tools.Workspace != "/srv/tools" {
		t.Errorf("expected absolute workspace to be kept, got %q", tools.Workspace)
	}
	if tools.Mount == nil || tools.Mount.TargetFolder != `C:\data` {
		t.Errorf("expected mount settings, got %+v", tools.Mount)
	}
	if tools.ExportDirectory != "/srv/tools/out" {
		t.Errorf("expected export directory resolved against the workspace, got %q", tools.ExportDirectory)
	}
	if tools.Push != nil {
		t.Errorf("expected no push settings, got %+v", tools.Push)
	}
}

func TestLoadProjects_YAML(t *testing.T) {
	path := writeFile(t, "projects.yaml", `
projects:
  - name: web
    repository_url: https://github.com/acme/web.git
    workspace: web
    script_path: app.me
    push:
      strategy: fixed
      remote_image_name: acme/web-
      date_format: "20060102"
`)

	projects, err := config.LoadProjects(path, "/workspaces")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
	if projects[0].Push == nil || projects[0].Push.DateFormat != "20060102" {
		t.Errorf("expected fixed push settings, got %+v", projects[0].Push)
	}
}

func TestLoadProjects_EmptyYAML(t *testing.T) {
	path := writeFile(t, "projects.yml", "")

	projects, err := config.LoadProjects(path, "/workspaces")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("expected no projects, got %d", len(projects))
	}
}

func TestLoadProjects_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown toml key", "p.toml", "[[projects]]\nname = \"a\"\nscript = \"x\"\n", "unknown keys"},
		{"unknown yaml key", "p.yaml", "projects:\n  - name: a\n    script: x\n", "failed to decode"},
		{"missing name", "p.toml", "[[projects]]\nscript_path = \"x\"\n", "has no name"},
		{"duplicate name", "p.yaml", "projects:\n  - name: a\n  - name: a\n", "defined twice"},
		{"unknown extension", "p.json", "{}", "must end in"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeFile(t, test.file, test.content)

			_, err := config.LoadProjects(path, "/workspaces")
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("expected error containing %q, got %v", test.want, err)
			}
		})
	}
}

func TestLoad_BuildRetention(t *testing.T) {
	t.Setenv("SPOON_EXECUTOR", "")
	t.Setenv("WORKER_POLL_INTERVAL", "")

	t.Setenv("BUILD_RETENTION", "")
	appConfig, err := config.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if appConfig.BuildRetention != 0 {
		t.Errorf("expected retention disabled by default, got %s", appConfig.BuildRetention)
	}

	t.Setenv("BUILD_RETENTION", "720h")
	if appConfig, err = config.Load(); err != nil || appConfig.BuildRetention != 720*time.Hour {
		t.Errorf("expected 720h retention, got %v (%v)", appConfig, err)
	}

	t.Setenv("BUILD_RETENTION", "-1h")
	if _, err := config.Load(); err == nil {
		t.Error("expected an error for negative retention")
	}
}
