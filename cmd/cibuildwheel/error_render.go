// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Klinikumxd/cibuildwheel/internal/build"
	"github.com/Klinikumxd/cibuildwheel/internal/container"
	"github.com/Klinikumxd/cibuildwheel/internal/environment"
	"github.com/Klinikumxd/cibuildwheel/internal/installer"
	"github.com/Klinikumxd/cibuildwheel/internal/issue"
	"github.com/Klinikumxd/cibuildwheel/internal/logger"
	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
	"github.com/Klinikumxd/cibuildwheel/internal/session"
	"github.com/Klinikumxd/cibuildwheel/internal/template"
	"github.com/Klinikumxd/cibuildwheel/internal/wheel"
)

// issueStyle is the glamour style catalog entries are rendered with.
var issueStyle = "auto"

// classifyIssue maps a failure to the catalog entry that explains it, or 0.
// An issue attached by the failing layer wins over the sentinel mapping.
func classifyIssue(err error) issue.Id {
	if iss := issue.Find(err); iss != nil {
		return iss.Id()
	}
	switch {
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.ContainerEngineNotFoundId
	case errors.Is(err, os.ErrPermission):
		return issue.ContainerPermissionDeniedId
	case errors.Is(err, session.ErrProvisioning):
		return issue.ProvisioningFailedId
	case errors.Is(err, wheel.ErrNonPlatformWheel):
		return issue.NonPlatformWheelId
	case errors.Is(err, environment.ErrParse):
		return issue.EnvironmentParseErrorId
	case errors.Is(err, template.ErrTemplate):
		return issue.TemplateErrorId
	case errors.Is(err, matrix.ErrInvalidArch):
		return issue.InvalidArchsId
	case errors.Is(err, errNoIdentifiers):
		return issue.NoBuildIdentifiersId
	case errors.Is(err, build.ErrPythonNotOnPath):
		return issue.PythonNotOnPathId
	case errors.Is(err, installer.ErrDownload):
		return issue.DownloadFailedId
	case errors.Is(err, installer.ErrUnsupported), errors.Is(err, matrix.ErrInvalidPlatform):
		return issue.UnsupportedHostId
	case errors.Is(err, session.ErrCommandFailed):
		return issue.BuildStepFailedId
	default:
		return 0
	}
}

// renderError prints err and, when one applies, the catalog entry that
// explains it.
func renderError(stderr io.Writer, log *logger.Logger, err error, verbose bool) {
	fmt.Fprintf(stderr, "\n%s %s\n", errorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	id := classifyIssue(err)
	if id == 0 {
		return
	}
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, renderErr := entry.Render(issueStyle)
	if renderErr != nil {
		log.Debug("cannot render issue", "issue", entry.Title(), "err", renderErr)
		fmt.Fprintf(stderr, "%s\n", warningStyle.Render(entry.Title()))
		return
	}
	fmt.Fprint(stderr, rendered)
}

// formatErrorForDisplay formats an error for user display.
// An ActionableError is shown with its suggestions, and in verbose mode
// with the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
