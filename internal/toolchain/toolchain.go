package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Environment describes the detected Node.js toolchain.
type Environment struct {
	Valid       bool   `json:"valid"`
	NodePath    string `json:"node_path,omitempty"`
	NpmPath     string `json:"npm_path,omitempty"`
	NodeVersion string `json:"node_version,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Prober locates and validates the Node.js runtime the automation scripts
// execute under. Explicit binary paths override PATH discovery.
type Prober struct {
	nodeBinary   string
	npmBinary    string
	probeTimeout time.Duration
	lookPath     func(string) (string, error)
	runVersion   func(ctx context.Context, bin string) (string, error)
}

// New constructs a Prober. Empty binary paths fall back to PATH lookup.
func New(nodeBinary, npmBinary string, probeTimeout time.Duration) *Prober {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &Prober{
		nodeBinary:   strings.TrimSpace(nodeBinary),
		npmBinary:    strings.TrimSpace(npmBinary),
		probeTimeout: probeTimeout,
		lookPath:     exec.LookPath,
		runVersion:   probeVersion,
	}
}

// Validate discovers node and npm and probes the node version. A missing or
// unresponsive node binary yields an invalid environment rather than an
// error; callers decide how to surface that.
func (p *Prober) Validate(ctx context.Context) Environment {
	nodePath, err := p.resolve(p.nodeBinary, "node")
	if err != nil {
		return Environment{Valid: false, Reason: "node executable not found"}
	}
	npmPath, err := p.resolve(p.npmBinary, "npm")
	if err != nil {
		npmPath = ""
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()
	version, err := p.runVersion(probeCtx, nodePath)
	if err != nil {
		return Environment{
			Valid:    false,
			NodePath: nodePath,
			NpmPath:  npmPath,
			Reason:   fmt.Sprintf("node version probe failed: %v", err),
		}
	}

	return Environment{
		Valid:       true,
		NodePath:    nodePath,
		NpmPath:     npmPath,
		NodeVersion: version,
	}
}

func (p *Prober) resolve(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return p.lookPath(name)
}

func probeVersion(ctx context.Context, bin string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, "--version").Output()
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "", fmt.Errorf("empty version output")
	}
	return version, nil
}
