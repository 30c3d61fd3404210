package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/pkg/config"
	"github.com/marmos91/opcuad/pkg/identity"
)

func run(t *testing.T, configFile string, args ...string) (string, error) {
	t.Helper()

	saved := *cmdutil.Flags
	cmdutil.Flags.ConfigFile = configFile
	t.Cleanup(func() { *cmdutil.Flags = saved })

	var buf bytes.Buffer
	Cmd.SetOut(&buf)
	Cmd.SetErr(&buf)
	Cmd.SetArgs(args)
	err := Cmd.Execute()
	return buf.String(), err
}

func TestInitValidateShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = run(t, path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "anonymous logins are allowed")
	assert.Contains(t, out, "opc.tcp://localhost:4840")

	out, err = run(t, path, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_sessions: 100")

	out, err = run(t, path, "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "opc.tcp://localhost:4840")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.yaml"), "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opcuad config init")
}

func TestSchema(t *testing.T) {
	out, err := run(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"subscription"`)

	file := filepath.Join(t.TempDir(), "schema.json")
	out, err = run(t, "", "schema", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, file)
}

func TestWarnings_WeakHash(t *testing.T) {
	weak, err := identity.HashPasswordWithCost("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	cfg.Identity.Users = []identity.User{
		{Name: "weak", PasswordHash: weak, Enabled: true},
		{Name: "broken", PasswordHash: "plain", Enabled: true},
	}

	ws := warnings(cfg)
	joined := strings.Join(ws, "\n")
	assert.Contains(t, joined, `user "weak"`)
	assert.Contains(t, joined, `user "broken"`)
}
