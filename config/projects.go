package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sasta-kro/spoon-trigger/models"
)

// ErrUnsupportedProjectsFile is returned for a projects file that is neither TOML nor YAML.
var ErrUnsupportedProjectsFile = errors.New("projects file must end in .toml, .yaml or .yml")

// projectsFile is the document layout shared by both formats:
//
//	[[projects]]
//	name = "app"
//	...
type projectsFile struct {
	Projects []models.Project `toml:"projects" yaml:"projects"`
}

// LoadProjects reads the projects file at path, picking the decoder by extension.
// unknown keys are an error in both formats, so a typo never silently drops a setting.
// relative workspaces are joined onto workspaceRoot.
func LoadProjects(path string, workspaceRoot string) ([]models.Project, error) {
	var document projectsFile

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		metadata, err := toml.DecodeFile(path, &document)
		if err != nil {
			return nil, fmt.Errorf("failed to decode projects file %q: %w", path, err)
		}
		if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("projects file %q has unknown keys: %s", path, strings.Join(keys, ", "))
		}

	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open projects file %q: %w", path, err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&document); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode projects file %q: %w", path, err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProjectsFile, path)
	}

	seen := map[string]bool{}
	for index := range document.Projects {
		project := &document.Projects[index]

		project.Name = strings.TrimSpace(project.Name)
		if project.Name == "" {
			return nil, fmt.Errorf("project #%d in %q has no name", index+1, path)
		}
		if seen[project.Name] {
			return nil, fmt.Errorf("project %q is defined twice in %q", project.Name, path)
		}
		seen[project.Name] = true

		if project.Workspace != "" && !filepath.IsAbs(project.Workspace) {
			project.Workspace = filepath.Join(workspaceRoot, project.Workspace)
		}
		project.ExportDirectory = project.ResolveInWorkspace(project.ExportDirectory)
	}

	return document.Projects, nil
}
