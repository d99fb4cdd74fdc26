package adapter

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditorUsesConfiguredCommand(t *testing.T) {
	e := NewEditor(EditorConfig{Command: "myedit", Args: []string{"--wait"}}, NullLogger())

	var gotName string
	var gotArgs []string
	e.run = func(ctx context.Context, name string, args []string) error {
		gotName, gotArgs = name, args
		require.Len(t, args, 2)
		return os.WriteFile(args[1], []byte("edited"), 0o600)
	}

	out, err := e.Edit(context.Background(), "original", "notes-*.md")
	require.NoError(t, err)
	assert.Equal(t, "edited", out)
	assert.Equal(t, "myedit", gotName)
	assert.Equal(t, "--wait", gotArgs[0])

	_, statErr := os.Stat(gotArgs[1])
	assert.True(t, os.IsNotExist(statErr), "temp file removed")
}

func TestEditorFromEnvironment(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "code --wait")
	e := NewEditor(EditorConfig{}, NullLogger())

	name, args, err := e.resolve()
	require.NoError(t, err)
	assert.Equal(t, "code", name)
	assert.Equal(t, []string{"--wait"}, args)
}

func TestEditorFallsBackToCandidates(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")
	e := NewEditor(EditorConfig{}, NullLogger())

	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	_, _, err := e.resolve()
	assert.Error(t, err)

	e.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	name, _, err := e.resolve()
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestEditorFailureReturnsError(t *testing.T) {
	e := NewEditor(EditorConfig{Command: "broken"}, NullLogger())
	e.run = func(context.Context, string, []string) error { return errors.New("exit status 1") }

	_, err := e.Edit(context.Background(), "text", "notes-*.md")
	assert.ErrorContains(t, err, "editor broken failed")
}
