package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/shoplens/internal/config"
)

func TestBrowserURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080"},
		{"0.0.0.0:9000", "http://localhost:9000"},
		{"127.0.0.1:8080", "http://127.0.0.1:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := browserURL(tt.addr); got != tt.want {
				t.Errorf("browserURL(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestFindWebDir_DataDir(t *testing.T) {
	// Run from a directory without any relative web/ folder.
	wd, _ := os.Getwd()
	empty := t.TempDir()
	if err := os.Chdir(empty); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	dataDir := t.TempDir()
	if got := findWebDir(dataDir); got != "" {
		t.Errorf("findWebDir() = %q, want empty", got)
	}

	webDir := filepath.Join(dataDir, "web")
	os.Mkdir(webDir, 0755)
	if got := findWebDir(dataDir); got != webDir {
		t.Errorf("findWebDir() = %q, want %q", got, webDir)
	}
}

func runCLI(t *testing.T, args ...string) *config.Config {
	t.Helper()
	t.Setenv("SHOPLENS_DATA_DIR", t.TempDir())
	t.Setenv("SHOPLENS_WEB_DIR", t.TempDir())

	var got *config.Config
	app := newCLIApp(config.FromEnv(), func(_ context.Context, cfg *config.Config) error {
		got = cfg
		return nil
	})
	if err := app.Run(append([]string{"shoplens"}, args...)); err != nil {
		t.Fatalf("Run(%v) error = %v", args, err)
	}
	return got
}

func TestCLI_DataDirMovesDefaultModelPaths(t *testing.T) {
	dataDir := t.TempDir()
	cfg := runCLI(t, "--data-dir", dataDir)

	if cfg.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dataDir)
	}
	if want := config.DefaultModelPath(dataDir); cfg.ModelPath != want {
		t.Errorf("ModelPath = %q, want %q", cfg.ModelPath, want)
	}
	if want := config.DefaultModelConfigPath(dataDir); cfg.ModelConfigPath != want {
		t.Errorf("ModelConfigPath = %q, want %q", cfg.ModelConfigPath, want)
	}
}

func TestCLI_ExplicitModelFlagWins(t *testing.T) {
	cfg := runCLI(t, "--data-dir", t.TempDir(), "--model", "/models/ssd.pb", "--fps", "30")

	if cfg.ModelPath != "/models/ssd.pb" {
		t.Errorf("ModelPath = %q, want the flag value", cfg.ModelPath)
	}
	if cfg.CameraFPS != 30 {
		t.Errorf("CameraFPS = %d, want 30", cfg.CameraFPS)
	}
}

func TestWebPage_CameraErrorsGoToConsole(t *testing.T) {
	js, err := os.ReadFile(filepath.Join("..", "..", "web", "app.js"))
	if err != nil {
		t.Fatalf("read app.js: %v", err)
	}
	if !strings.Contains(string(js), "console.error") {
		t.Error("app.js should log webcam failures with console.error")
	}
	if strings.Contains(string(js), "getElementById('error')") {
		t.Error("app.js should not show webcam failures on the page")
	}

	html, err := os.ReadFile(filepath.Join("..", "..", "web", "index.html"))
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	if strings.Contains(string(html), `id="error"`) {
		t.Error("index.html should not carry an error banner")
	}
}
