package provision

import (
	"reflect"
	"strings"
	"testing"
)

func TestDefaultRecipeRender(t *testing.T) {
	rendered := DefaultRecipe().Render()

	wantInstructions := []string{
		"FROM ubuntu:22.04",
		"ENV DEBIAN_FRONTEND=noninteractive",
		"RUN apt-get update && apt-get install -y --no-install-recommends python3 python3-pip nodejs npm wget gnupg && rm -rf /var/lib/apt/lists/*",
		"RUN wget -q -O - https://dl.google.com/linux/linux_signing_key.pub | apt-key add -",
		"WORKDIR /app",
		"COPY . /app",
		"RUN pip3 install --no-cache-dir streamlit",
		"RUN npm install",
		"EXPOSE 8501",
		`CMD ["streamlit", "run", "main.py", "--server.address", "0.0.0.0", "--server.port", "8501"]`,
	}
	last := -1
	for _, want := range wantInstructions {
		idx := strings.Index(rendered, want)
		if idx < 0 {
			t.Fatalf("rendered Dockerfile missing %q:\n%s", want, rendered)
		}
		if idx < last {
			t.Fatalf("instruction %q out of order:\n%s", want, rendered)
		}
		last = idx
	}
	if !strings.Contains(rendered, "google-chrome-stable") {
		t.Fatalf("browser package missing:\n%s", rendered)
	}
	if strings.Count(rendered, "EXPOSE") != 1 {
		t.Fatalf("expected exactly one EXPOSE instruction:\n%s", rendered)
	}
}

func TestLaunchCommand(t *testing.T) {
	got := DefaultRecipe().LaunchCommand()
	want := []string{"streamlit", "run", "main.py", "--server.address", "0.0.0.0", "--server.port", "8501"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("launch command = %v, want %v", got, want)
	}
}

func TestStagePlanMatchesRenderedSteps(t *testing.T) {
	recipe := DefaultRecipe()
	plan := recipe.StagePlan()

	// continuation lines of the multi-line browser RUN are indented
	instructionCount := 0
	for _, line := range strings.Split(recipe.Render(), "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "  ") {
			continue
		}
		instructionCount++
	}
	if len(plan) != instructionCount {
		t.Fatalf("stage plan has %d entries, rendered file has %d instructions", len(plan), instructionCount)
	}

	wantOrder := []Stage{StageBase, StageBase, StageSystemDeps, StageBrowser, StageWorkspace, StageWorkspace, StageDeps, StageDeps, StagePort, StagePort}
	if !reflect.DeepEqual(plan, wantOrder) {
		t.Fatalf("stage plan = %v, want %v", plan, wantOrder)
	}
}

func TestStagesOrder(t *testing.T) {
	want := []Stage{StageBase, StageSystemDeps, StageBrowser, StageWorkspace, StageDeps, StagePort, StageLaunch}
	if !reflect.DeepEqual(Stages(), want) {
		t.Fatalf("stages = %v, want %v", Stages(), want)
	}
}

func TestRecipeValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Recipe)
		ok     bool
	}{
		{"default", func(*Recipe) {}, true},
		{"missing base image", func(r *Recipe) { r.BaseImage = "" }, false},
		{"missing entry point", func(r *Recipe) { r.EntryPoint = " " }, false},
		{"invalid port", func(r *Recipe) { r.Port = 0 }, false},
		{"port out of range", func(r *Recipe) { r.Port = 70000 }, false},
		{"missing bind address", func(r *Recipe) { r.BindAddress = "" }, false},
		{"browser without key", func(r *Recipe) { r.Browser.SigningKeyURL = "" }, false},
		{"no browser at all", func(r *Recipe) { r.Browser = BrowserChannel{} }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recipe := DefaultRecipe()
			tc.mutate(&recipe)
			err := recipe.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
