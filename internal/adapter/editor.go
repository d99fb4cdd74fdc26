package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// candidateEditors defines the fallback order for each platform
var candidateEditors = map[string][]string{
	"darwin":  {"nano", "vim", "vi"},
	"linux":   {"nano", "vim", "vi"},
	"windows": {"notepad"},
}

// Editor opens text in an external editor and waits for it to exit
type Editor struct {
	command string   // configured editor command, empty to detect
	args    []string // additional arguments for the editor
	logger  *slog.Logger

	// lookPath and run are replaced in tests
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args []string) error
}

// NewEditor creates an editor. An empty command resolves $VISUAL, then
// $EDITOR, then the first candidate found in PATH.
func NewEditor(cfg EditorConfig, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		command:  cfg.Command,
		args:     cfg.Args,
		logger:   logger,
		lookPath: exec.LookPath,
		run:      runAttached,
	}
}

// runAttached runs the editor on the current terminal
func runAttached(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// resolve returns the command and leading arguments to launch
func (e *Editor) resolve() (string, []string, error) {
	// Tier 1: configured command
	if e.command != "" {
		return e.command, e.args, nil
	}

	// Tier 2: environment, which may carry its own flags ("code --wait")
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(env)); len(fields) > 0 {
			e.logger.Debug("using editor from environment", "var", env, "command", fields[0])
			return fields[0], append(fields[1:], e.args...), nil
		}
	}

	// Tier 3: first candidate in PATH
	candidates, ok := candidateEditors[runtime.GOOS]
	if !ok {
		candidates = candidateEditors["linux"]
	}
	for _, name := range candidates {
		if _, err := e.lookPath(name); err == nil {
			return name, e.args, nil
		}
		e.logger.Debug("editor not available", "editor", name)
	}
	return "", nil, fmt.Errorf("no editor found, set $EDITOR or editor.command")
}

// Edit writes text to a temp file named with pattern, opens it and returns
// the saved contents.
func (e *Editor) Edit(ctx context.Context, text, pattern string) (string, error) {
	name, args, err := e.resolve()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	e.logger.Info("launching editor", "command", name, "args", args, "file", path)
	if err := e.run(ctx, name, append(append([]string{}, args...), path)); err != nil {
		return "", fmt.Errorf("editor %s failed: %w", name, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read edited file: %w", err)
	}
	return string(data), nil
}
