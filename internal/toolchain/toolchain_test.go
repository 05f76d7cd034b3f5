package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidateReportsMissingNode(t *testing.T) {
	p := New("", "", time.Second)
	p.lookPath = func(name string) (string, error) {
		return "", errors.New("not found")
	}

	env := p.Validate(context.Background())
	if env.Valid {
		t.Fatal("expected invalid environment")
	}
	if !strings.Contains(env.Reason, "node executable not found") {
		t.Fatalf("reason = %q", env.Reason)
	}
}

func TestValidateNpmOptional(t *testing.T) {
	p := New("", "", time.Second)
	p.lookPath = func(name string) (string, error) {
		if name == "node" {
			return "/usr/bin/node", nil
		}
		return "", errors.New("not found")
	}
	p.runVersion = func(ctx context.Context, bin string) (string, error) {
		return "v20.11.0", nil
	}

	env := p.Validate(context.Background())
	if !env.Valid {
		t.Fatalf("expected valid environment, reason: %s", env.Reason)
	}
	if env.NodePath != "/usr/bin/node" {
		t.Fatalf("node path = %q", env.NodePath)
	}
	if env.NpmPath != "" {
		t.Fatalf("npm path = %q, want empty", env.NpmPath)
	}
	if env.NodeVersion != "v20.11.0" {
		t.Fatalf("version = %q", env.NodeVersion)
	}
}

func TestValidateVersionProbeFailure(t *testing.T) {
	p := New("/custom/node", "/custom/npm", time.Second)
	p.runVersion = func(ctx context.Context, bin string) (string, error) {
		return "", fmt.Errorf("exec format error")
	}

	env := p.Validate(context.Background())
	if env.Valid {
		t.Fatal("expected invalid environment")
	}
	if env.NodePath != "/custom/node" {
		t.Fatalf("node path = %q", env.NodePath)
	}
	if !strings.Contains(env.Reason, "version probe failed") {
		t.Fatalf("reason = %q", env.Reason)
	}
}

func TestValidateExplicitPathSkipsLookup(t *testing.T) {
	p := New("/opt/node/bin/node", "", time.Second)
	looked := false
	p.lookPath = func(name string) (string, error) {
		if name == "node" {
			looked = true
		}
		return "", errors.New("not found")
	}
	p.runVersion = func(ctx context.Context, bin string) (string, error) {
		if bin != "/opt/node/bin/node" {
			t.Fatalf("probed %q", bin)
		}
		return "v20.0.0", nil
	}

	env := p.Validate(context.Background())
	if !env.Valid {
		t.Fatalf("expected valid environment, reason: %s", env.Reason)
	}
	if looked {
		t.Fatal("explicit node path should not trigger PATH lookup")
	}
}

func TestValidateProbeTimeout(t *testing.T) {
	p := New("/usr/bin/node", "", 50*time.Millisecond)
	p.runVersion = func(ctx context.Context, bin string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
			return "v20.0.0", nil
		}
	}

	env := p.Validate(context.Background())
	if env.Valid {
		t.Fatal("expected probe timeout to invalidate environment")
	}
}
