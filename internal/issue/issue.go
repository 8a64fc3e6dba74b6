// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ContainerEngineNotFoundId Id = iota + 1
	ContainerPermissionDeniedId
	ProvisioningFailedId
	BuildStepFailedId
	NonPlatformWheelId
	ConfigLoadFailedId
	EnvironmentParseErrorId
	TemplateErrorId
	InvalidArchsId
	NoBuildIdentifiersId
	PythonNotOnPathId
	DownloadFailedId
	UnsupportedHostId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	title    string      // one line shown in the terminal summary
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // cibuildwheel documentation pages
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) Title() string {
	return i.title
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Markdown returns the issue text with its links appended as a list.
func (i *Issue) Markdown() string {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	links := append(i.DocLinks(), i.extLinks...)
	if len(links) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range links {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return md.String()
}

// Render renders the issue for a terminal using a glamour style name
// ("dark", "light", "notty", ...) or a path to a style JSON file.
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

var (
	render = glamour.Render

	containerEngineNotFoundIssue = &Issue{
		id:    ContainerEngineNotFoundId,
		title: "No container engine found",
		mdMsg: `
# No container engine found!

Linux wheels are built inside manylinux containers, which needs Docker or Podman.

## Things you can try:
- Install Docker or Podman and make sure the daemon is running:
~~~
$ docker version
~~~

- On Travis CI, add ` + "`services: [docker]`" + ` to your .travis.yml
- On CircleCI, add a ` + "`setup_remote_docker`" + ` step to your config
- Select the engine explicitly:
~~~toml
[tool.cibuildwheel]
container-engine = "podman"
~~~`,
		docLinks: []HttpLink{"https://cibuildwheel.readthedocs.io/en/stable/setup/"},
	}

	containerPermissionDeniedIssue = &Issue{
		id:    ContainerPermissionDeniedId,
		title: "Permission denied talking to the container engine",
		mdMsg: `
# Permission denied!

The container engine refused the request.

## Things you can try:
- Add yourself to the docker group and log in again:
~~~
$ sudo usermod -aG docker $USER
~~~

- Use rootless Podman instead`,
	}

	provisioningFailedIssue = &Issue{
		id:    ProvisioningFailedId,
		title: "Could not start the build environment",
		mdMsg: `
# Could not start the build environment!

The build container (or the host work directory) could not be created.

## Common causes:
- The manylinux image name is wrong or cannot be pulled
- The engine ran out of disk space
- The network is unavailable while pulling the image

## Things you can try:
- Pull the image by hand to see the engine's error:
~~~
$ docker pull quay.io/pypa/manylinux2010_x86_64
~~~

- Check the ` + "`manylinux-*-image`" + ` options`,
	}

	buildStepFailedIssue = &Issue{
		id:    BuildStepFailedId,
		title: "A build step failed",
		mdMsg: `
# A build step failed!

One of the commands run for the build exited with a non-zero status. Its
output is shown above, exactly as the command printed it.

## Things you can try:
- Re-run the failing command by hand; it is printed after ` + "`+`" + `
- Increase pip's verbosity with ` + "`build-verbosity = 1`" + `
- Check ` + "`before-build`" + ` and ` + "`test-command`" + ` placeholders`,
		docLinks: []HttpLink{"https://cibuildwheel.readthedocs.io/en/stable/options/"},
	}

	nonPlatformWheelIssue = &Issue{
		id:    NonPlatformWheelId,
		title: "Build produced a pure Python wheel",
		mdMsg: `
# Build produced a pure Python wheel!

The wheel's tags are ` + "`none-any`" + `: it contains no compiled code. This
tool exists to build platform wheels, so this usually means the extension
module was not picked up by setup.py.

## Things you can try:
- Check the ` + "`ext_modules`" + ` of your setup.py
- If the package really is pure Python, build one universal wheel with:
~~~
$ pip wheel -w dist .
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id:    ConfigLoadFailedId,
		title: "Invalid configuration",
		mdMsg: `
# Invalid configuration!

The options in pyproject.toml, the CIBW_* environment variables or the
command line could not be loaded.

## Things you can try:
- Check the ` + "`[tool.cibuildwheel]`" + ` table against the documented option names
- Option names use dashes in TOML (` + "`test-command`" + `) and underscores in
  environment variables (` + "`CIBW_TEST_COMMAND`" + `)`,
		docLinks: []HttpLink{"https://cibuildwheel.readthedocs.io/en/stable/options/"},
	}

	environmentParseErrorIssue = &Issue{
		id:    EnvironmentParseErrorId,
		title: "Malformed environment option",
		mdMsg: `
# Malformed environment option!

Each entry of ` + "`environment`" + ` must be ` + "`NAME=value`" + `, where value is
one shell word.

## Examples:
~~~
CIBW_ENVIRONMENT='CFLAGS="-O2 -g" PATH=$PATH:/opt/tool/bin'
~~~

~~~toml
[tool.cibuildwheel.environment]
CFLAGS = "-O2 -g"
~~~`,
	}

	templateErrorIssue = &Issue{
		id:    TemplateErrorId,
		title: "Unknown placeholder in a command",
		mdMsg: `
# Unknown placeholder in a command!

Each command option only understands its own placeholders:

| Option | Placeholders |
|---|---|
| before-all, before-build, before-test, test-command | {project}, {package} |
| repair-wheel-command | {wheel}, {dest_dir}, {delocate_archs} |

Write ` + "`{{`" + ` and ` + "`}}`" + ` for literal braces.`,
	}

	invalidArchsIssue = &Issue{
		id:    InvalidArchsId,
		title: "Invalid archs option",
		mdMsg: `
# Invalid archs option!

| Platform | Architectures |
|---|---|
| linux | x86_64 i686 aarch64 ppc64le s390x |
| macos | x86_64 arm64 universal2 |
| windows | x86 AMD64 |

The keywords ` + "`auto`" + `, ` + "`native`" + ` and ` + "`all`" + ` are also accepted.`,
	}

	noBuildIdentifiersIssue = &Issue{
		id:    NoBuildIdentifiersId,
		title: "No build identifiers selected",
		mdMsg: `
# No build identifiers selected!

The build and skip options, together with archs, filtered out every
configuration.

## Things you can try:
- List what would be built:
~~~
$ cibuildwheel --print-build-identifiers
~~~`,
	}

	pythonNotOnPathIssue = &Issue{
		id:    PythonNotOnPathId,
		title: "Wrong python on PATH",
		mdMsg: `
# Wrong python on PATH!

The python or pip found on PATH is not the interpreter installed for this
build. If your ` + "`environment`" + ` option modifies PATH, append to it instead
of replacing it:
~~~
PATH=$PATH:/extra/bin
~~~`,
	}

	downloadFailedIssue = &Issue{
		id:    DownloadFailedId,
		title: "Download failed",
		mdMsg: `
# Download failed!

An interpreter or tool could not be downloaded.

## Things you can try:
- Check your network connection and proxy settings
- Remove a partially downloaded file from the cache directory`,
	}

	unsupportedHostIssue = &Issue{
		id:    UnsupportedHostId,
		title: "Platform cannot be built on this host",
		mdMsg: `
# Platform cannot be built on this host!

macOS wheels must be built on macOS and Windows wheels on Windows. Linux
wheels can be built anywhere a Linux container engine runs.`,
	}

	issues = map[Id]*Issue{
		containerEngineNotFoundIssue.Id():   containerEngineNotFoundIssue,
		containerPermissionDeniedIssue.Id(): containerPermissionDeniedIssue,
		provisioningFailedIssue.Id():        provisioningFailedIssue,
		buildStepFailedIssue.Id():           buildStepFailedIssue,
		nonPlatformWheelIssue.Id():          nonPlatformWheelIssue,
		configLoadFailedIssue.Id():          configLoadFailedIssue,
		environmentParseErrorIssue.Id():     environmentParseErrorIssue,
		templateErrorIssue.Id():             templateErrorIssue,
		invalidArchsIssue.Id():              invalidArchsIssue,
		noBuildIdentifiersIssue.Id():        noBuildIdentifiersIssue,
		pythonNotOnPathIssue.Id():           pythonNotOnPathIssue,
		downloadFailedIssue.Id():            downloadFailedIssue,
		unsupportedHostIssue.Id():           unsupportedHostIssue,
	}
)

// Values returns every issue ordered by id.
func Values() []*Issue {
	ids := maps.Keys(issues)
	slices.Sort(ids)
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
