package nodedeps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Result summarizes a dependency installation attempt.
type Result struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AlreadySetup  bool   `json:"already_setup"`
	Stdout        string `json:"stdout,omitempty"`
	Stderr        string `json:"stderr,omitempty"`
	ReturnCode    int    `json:"return_code"`
	ManifestWrote bool   `json:"manifest_wrote"`
}

// packageManifest is the project's Node package declaration. It pins the
// automation library the generated scripts require.
type packageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Main            string            `json:"main"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
	Keywords        []string          `json:"keywords"`
	License         string            `json:"license"`
}

func defaultManifest() packageManifest {
	return packageManifest{
		Name:        "academic-browser-automation",
		Version:     "1.0.0",
		Description: "Academic demonstration of browser automation with detailed analysis",
		Main:        "index.js",
		Dependencies: map[string]string{
			"puppeteer": "^21.0.0",
		},
		DevDependencies: map[string]string{},
		Scripts: map[string]string{
			"test": "node test.js",
		},
		Keywords: []string{"automation", "academic", "browser", "research"},
		License:  "MIT",
	}
}

// Installer materializes the package manifest and runs npm install.
type Installer struct {
	dir     string
	npmPath string
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs an Installer rooted at the project directory.
func New(dir, npmPath string, timeout time.Duration, logger *slog.Logger) (*Installer, error) {
	if dir == "" {
		return nil, fmt.Errorf("project directory required")
	}
	if npmPath == "" {
		return nil, fmt.Errorf("npm path required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Installer{dir: dir, npmPath: npmPath, timeout: timeout, logger: logger}, nil
}

// Installed reports whether dependencies are already materialized.
func (i *Installer) Installed() bool {
	info, err := os.Stat(filepath.Join(i.dir, "node_modules"))
	return err == nil && info.IsDir()
}

// Ensure installs the automation dependencies if they are not present yet.
// The package manifest is written only when the project does not declare one.
func (i *Installer) Ensure(ctx context.Context) Result {
	if i.Installed() {
		return Result{Success: true, AlreadySetup: true, Message: "dependencies already installed"}
	}

	wroteManifest := false
	manifestPath := filepath.Join(i.dir, "package.json")
	if _, err := os.Stat(manifestPath); errors.Is(err, os.ErrNotExist) {
		data, err := json.MarshalIndent(defaultManifest(), "", "  ")
		if err != nil {
			return Result{Success: false, Message: fmt.Sprintf("encode package manifest: %v", err)}
		}
		if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
			return Result{Success: false, Message: fmt.Sprintf("write package manifest: %v", err)}
		}
		wroteManifest = true
	} else if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("check package manifest: %v", err)}
	}

	installCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, i.npmPath, "install")
	cmd.Dir = i.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ManifestWrote: wroteManifest,
	}
	if installCtx.Err() == context.DeadlineExceeded {
		result.Message = fmt.Sprintf("installation timed out after %s", i.timeout)
		if i.logger != nil {
			i.logger.Error("npm install timed out", "dir", i.dir, "timeout", i.timeout)
		}
		return result
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
		}
		result.Message = stderr.String()
		if result.Message == "" {
			result.Message = err.Error()
		}
		if i.logger != nil {
			i.logger.Error("npm install failed", "dir", i.dir, "error", err)
		}
		return result
	}
	result.Success = true
	result.Message = "installation successful"
	if i.logger != nil {
		i.logger.Info("npm install completed", "dir", i.dir, "manifest_written", wroteManifest)
	}
	return result
}
