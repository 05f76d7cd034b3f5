package provision

import (
	"fmt"
	"strings"
)

// Stage identifies one step of the linear provisioning procedure.
type Stage string

const (
	StageBase       Stage = "base"
	StageSystemDeps Stage = "system-deps"
	StageBrowser    Stage = "browser"
	StageWorkspace  Stage = "workspace"
	StageDeps       Stage = "deps"
	StagePort       Stage = "port-declaration"
	StageLaunch     Stage = "launch"
)

// Stages lists the provisioning stages in execution order. The procedure is
// strictly linear: every stage runs exactly once and any failure aborts the
// remainder.
func Stages() []Stage {
	return []Stage{StageBase, StageSystemDeps, StageBrowser, StageWorkspace, StageDeps, StagePort, StageLaunch}
}

// BrowserChannel describes the third-party package source for the browser
// binary. Both endpoints are build-time network dependencies with no
// fallback.
type BrowserChannel struct {
	SigningKeyURL string `toml:"signing_key_url"`
	Repository    string `toml:"repository"`
	Package       string `toml:"package"`
}

// Recipe is the declarative model of the container build recipe. The zero
// value is not usable; start from DefaultRecipe.
type Recipe struct {
	BaseImage      string         `toml:"base_image"`
	SystemPackages []string       `toml:"system_packages"`
	Browser        BrowserChannel `toml:"browser"`
	Workdir        string         `toml:"workdir"`
	PythonPackages []string       `toml:"python_packages"`
	NodeInstall    bool           `toml:"node_install"`
	EntryPoint     string         `toml:"entry_point"`
	BindAddress    string         `toml:"bind_address"`
	Port           int            `toml:"port"`
}

// DefaultRecipe reproduces the shipped recipe: an Ubuntu LTS base with a
// Python interpreter, a Node.js runtime, the pinned Chrome channel, the
// single Python web-UI dependency, and a launch command bound to every
// interface on port 8501.
func DefaultRecipe() Recipe {
	return Recipe{
		BaseImage:      "ubuntu:22.04",
		SystemPackages: []string{"python3", "python3-pip", "nodejs", "npm", "wget", "gnupg"},
		Browser: BrowserChannel{
			SigningKeyURL: "https://dl.google.com/linux/linux_signing_key.pub",
			Repository:    "deb [arch=amd64] http://dl.google.com/linux/chrome/deb/ stable main",
			Package:       "google-chrome-stable",
		},
		Workdir:        "/app",
		PythonPackages: []string{"streamlit"},
		NodeInstall:    true,
		EntryPoint:     "main.py",
		BindAddress:    "0.0.0.0",
		Port:           8501,
	}
}

// Validate checks the recipe is complete enough to render.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.BaseImage) == "" {
		return fmt.Errorf("recipe: base image required")
	}
	if strings.TrimSpace(r.Workdir) == "" {
		return fmt.Errorf("recipe: workdir required")
	}
	if strings.TrimSpace(r.EntryPoint) == "" {
		return fmt.Errorf("recipe: entry point required")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return fmt.Errorf("recipe: invalid port %d", r.Port)
	}
	if strings.TrimSpace(r.BindAddress) == "" {
		return fmt.Errorf("recipe: bind address required")
	}
	if r.Browser.Package != "" {
		if strings.TrimSpace(r.Browser.SigningKeyURL) == "" {
			return fmt.Errorf("recipe: browser signing key url required")
		}
		if strings.TrimSpace(r.Browser.Repository) == "" {
			return fmt.Errorf("recipe: browser repository required")
		}
	}
	return nil
}

// LaunchCommand returns the exact process invocation the image runs: the
// web-UI server with its bind address and port, and nothing else.
func (r Recipe) LaunchCommand() []string {
	return []string{
		"streamlit", "run", r.EntryPoint,
		"--server.address", r.BindAddress,
		"--server.port", fmt.Sprintf("%d", r.Port),
	}
}

type instruction struct {
	stage Stage
	text  string
}

// instructions expands the recipe into ordered Dockerfile instructions, each
// attributed to its provisioning stage. Render and StagePlan derive from the
// same expansion so build-output attribution cannot drift from the rendered
// file.
func (r Recipe) instructions() []instruction {
	ins := []instruction{
		{StageBase, "FROM " + r.BaseImage},
		{StageBase, "ENV DEBIAN_FRONTEND=noninteractive"},
	}
	if len(r.SystemPackages) > 0 {
		ins = append(ins, instruction{StageSystemDeps,
			"RUN apt-get update && apt-get install -y --no-install-recommends " +
				strings.Join(r.SystemPackages, " ") +
				" && rm -rf /var/lib/apt/lists/*"})
	}
	if r.Browser.Package != "" {
		var b strings.Builder
		b.WriteString("RUN wget -q -O - " + r.Browser.SigningKeyURL + " | apt-key add - \\\n")
		b.WriteString("  && echo \"" + r.Browser.Repository + "\" > /etc/apt/sources.list.d/browser.list \\\n")
		b.WriteString("  && apt-get update && apt-get install -y " + r.Browser.Package + " \\\n")
		b.WriteString("  && rm -rf /var/lib/apt/lists/*")
		ins = append(ins, instruction{StageBrowser, b.String()})
	}
	ins = append(ins,
		instruction{StageWorkspace, "WORKDIR " + r.Workdir},
		instruction{StageWorkspace, "COPY . " + r.Workdir},
	)
	if len(r.PythonPackages) > 0 {
		ins = append(ins, instruction{StageDeps, "RUN pip3 install --no-cache-dir " + strings.Join(r.PythonPackages, " ")})
	}
	if r.NodeInstall {
		ins = append(ins, instruction{StageDeps, "RUN npm install"})
	}
	ins = append(ins,
		instruction{StagePort, fmt.Sprintf("EXPOSE %d", r.Port)},
		instruction{StagePort, "CMD " + renderExecForm(r.LaunchCommand())},
	)
	return ins
}

// Render produces the Dockerfile for the recipe. The instruction order is
// fixed: base, system packages, browser channel, workspace copy, dependency
// installation, port declaration, launch command.
func (r Recipe) Render() string {
	var b strings.Builder
	for _, in := range r.instructions() {
		b.WriteString(in.text)
		b.WriteString("\n")
	}
	return b.String()
}

// StagePlan maps one-based build step indices (as reported by the classic
// image builder) to provisioning stages.
func (r Recipe) StagePlan() []Stage {
	ins := r.instructions()
	plan := make([]Stage, len(ins))
	for i, in := range ins {
		plan[i] = in.stage
	}
	return plan
}

func renderExecForm(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = `"` + a + `"`
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
