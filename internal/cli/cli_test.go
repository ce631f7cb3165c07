package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasklist/internal/config"
	"tasklist/internal/testserver"
)

type harness struct {
	t   *testing.T
	cfg config.Config
}

func newHarness(t *testing.T) *harness {
	srv := testserver.Start(t, testserver.Options{})
	var cfg config.Config
	cfg.API.BaseURL = srv.URL
	cfg.Request.Timeout = 5 * time.Second
	cfg.Token.Store = config.TokenStoreSQLite
	cfg.Token.Path = filepath.Join(t.TempDir(), "credential.db")
	cfg.Log.Level = "error"
	return &harness{t: t, cfg: cfg}
}

// run executes one taskctl invocation, as a separate process would.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := newRootCommand(func() (config.Config, error) { return h.cfg, nil })
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := Execute(root)
	if err != nil {
		return errOut.String(), err
	}
	return out.String(), nil
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"signup", "signin", "signout", "whoami", "tasks"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestSessionCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("signup", "--email", "a@x.com", "--password", "Passw0rd1")
	require.NoError(t, err)
	assert.Contains(t, out, "signed up as a@x.com")

	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "a@x.com")

	out, err = h.run("signout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	out, err = h.run("whoami")
	require.Error(t, err)
	assert.Contains(t, out, "not signed in")

	out, err = h.run("signin", "--email", "a@x.com", "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, out, "error: invalid credentials")

	_, err = h.run("signin", "--email", "a@x.com", "--password", "Passw0rd1")
	require.NoError(t, err)
}

func TestSignUpValidationMessage(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("signup", "--email", "a@x.com", "--password", "short")
	require.Error(t, err)
	assert.Contains(t, out, "password")
}

func TestTaskCommands(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("signup", "--email", "a@x.com", "--password", "Passw0rd1")
	require.NoError(t, err)

	out, err := h.run("tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no tasks")

	out, err = h.run("tasks", "add", "water plants", "-d", "balcony")
	require.NoError(t, err)
	assert.Contains(t, out, "added #1 water plants")

	out, err = h.run("tasks", "done", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 is now done")

	out, err = h.run("tasks", "edit", "1", "--title", "water all plants")
	require.NoError(t, err)
	assert.Contains(t, out, "updated #1 water all plants")

	out, err = h.run("tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[x]")
	assert.Contains(t, out, "water all plants")

	out, err = h.run("tasks", "rm", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted #1")

	out, err = h.run("tasks", "done", "1")
	require.Error(t, err)
	assert.Contains(t, out, "error:")

	_, err = h.run("tasks", "edit", "1")
	assert.ErrorContains(t, err, "nothing to change")

	_, err = h.run("tasks", "done", "abc")
	assert.ErrorContains(t, err, "invalid task id")
}

func TestTaskCommandsRequireSignIn(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("tasks", "list")
	require.Error(t, err)
	assert.Contains(t, out, "not signed in")
}
