package validation

import (
	"fmt"
	"os"

	"github.com/sasta-kro/spoon-trigger/models"
)

var (
	optionalSingleWord    = Chain(Optional(), SingleWord("Parameter"))
	optionalVersionNumber = Chain(Optional(), VersionNumber())
	optionalRepositoryURL = Chain(Optional(), RepositoryURL())
	requiredValue         = Required(requiredParameter, LevelError)
	workspaceValidator    = Chain(requiredValue, Exists("Directory"), IsDirectory(), IsAbsolute())
	scriptFileValidator   = Chain(requiredValue, Exists("File"), IsFile())
	exportDirValidator    = Chain(Optional(), Exists("Directory"), IsDirectory(), IsAbsolute())
	remoteImageValidator  = Chain(requiredValue, SingleWord("Parameter"))
	organizationValidator = Chain(Optional(), SingleWord("Organization"))
	dateFormatValidator   = Chain(Optional(), SingleWord("Date format"), DateLayout())
)

// ValidateProject grades every field of a project and returns the non-OK outcomes.
// a project whose report HasErrors must not be saved.
func ValidateProject(project models.Project) Report {
	var report Report

	report.add("name", Validate(requiredValue, project.Name))
	report.add("repository_url", Validate(optionalRepositoryURL, project.RepositoryURL))
	report.add("workspace", Validate(workspaceValidator, project.Workspace))
	report.add("script_path", Validate(scriptFileValidator, project.ResolveInWorkspace(project.ScriptPath)))
	report.add("image_name", Validate(optionalSingleWord, project.ImageName))
	report.add("vm_version", Validate(optionalVersionNumber, project.VMVersion))

	if project.Mount != nil {
		report.add("mount.source_container", Validate(optionalSingleWord, project.Mount.SourceContainer))
		report.add("mount.source_folder", Validate(requiredValue, project.Mount.SourceFolder))
		report.add("mount.target_folder", Validate(requiredValue, project.Mount.TargetFolder))
	}

	report.add("login_user", validateLogin(project))

	if project.Push != nil {
		validatePush(&report, *project.Push)
	}

	report.add("export_directory", Validate(exportDirValidator, project.ResolveInWorkspace(project.ExportDirectory)))

	return report
}

func validateLogin(project models.Project) Outcome {
	switch {
	case project.LoginUser == "" && project.LoginPasswordEnv == "":
		return Outcome{Level: LevelWarning, Message: "Credentials are required to login to a Spoon account"}
	case project.LoginUser == "":
		return Outcome{Level: LevelError, Message: "Login user is required when a password variable is set"}
	case project.LoginPasswordEnv == "":
		return Outcome{Level: LevelError, Message: "Password environment variable is required when a login user is set"}
	case os.Getenv(project.LoginPasswordEnv) == "":
		return Outcome{Level: LevelWarning, Message: fmt.Sprintf("Environment variable %s is not set", project.LoginPasswordEnv)}
	}
	return OK()
}

func validatePush(report *Report, push models.PushSettings) {
	switch push.Strategy {
	case models.RemoteImageNone, "":
	case models.RemoteImageGenerate:
		report.add("push.organization", Validate(organizationValidator, push.Organization))
	case models.RemoteImageFixed:
		report.add("push.remote_image_name", Validate(remoteImageValidator, push.RemoteImageName))
		report.add("push.date_format", Validate(dateFormatValidator, push.DateFormat))
	default:
		report.add("push.strategy", Outcome{
			Level:   LevelError,
			Message: fmt.Sprintf("Unknown remote image strategy (%s), expected none, generate or fixed", push.Strategy),
		})
	}
}
