package sessions

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/pkg/api"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/securechannel"
	"github.com/marmos91/opcuad/pkg/session"
)

func newServer(t *testing.T) (*session.Manager, *identity.TokenValidator) {
	t.Helper()

	auth, err := identity.NewAuthenticator(identity.Config{AllowAnonymous: true})
	require.NoError(t, err)
	m := session.NewManager(session.Config{}, auth, securechannel.NewEmptyCertificateStore())
	tokens, err := identity.NewTokenValidator(identity.IssuedTokenConfig{Secret: "0123456789abcdef0123456789abcdef"})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(m, tokens, "admin"))
	t.Cleanup(srv.Close)

	saved := *cmdutil.Flags
	*cmdutil.Flags = cmdutil.GlobalFlags{ServerURL: srv.URL, Output: "table", NoColor: true}
	t.Cleanup(func() { *cmdutil.Flags = saved })
	return m, tokens
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	Cmd.SetOut(&buf)
	Cmd.SetErr(&buf)
	Cmd.SetArgs(args)
	err := Cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestList(t *testing.T) {
	m, _ := newServer(t)
	_, err := m.Create(session.CreateParams{Name: "line-1"})
	require.NoError(t, err)
	closed, err := m.Create(session.CreateParams{Name: "line-2"})
	require.NoError(t, err)
	_, err = m.CloseByID(closed.ID().String())
	require.NoError(t, err)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "line-1")
	assert.NotContains(t, out, "line-2")

	out, err = run(t, "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "line-2")
	assert.Contains(t, out, "terminated")
}

func TestList_Empty(t *testing.T) {
	newServer(t)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "No sessions.\n", out)
}

func TestShow(t *testing.T) {
	m, _ := newServer(t)
	s, err := m.Create(session.CreateParams{Name: "detail"})
	require.NoError(t, err)

	out, err := run(t, "show", s.ID().String())
	require.NoError(t, err)
	assert.Contains(t, out, "detail")
	assert.Contains(t, out, "created")

	_, err = run(t, "show", "ns=1;i=424242")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestClose_RequiresToken(t *testing.T) {
	m, tokens := newServer(t)
	s, err := m.Create(session.CreateParams{Name: "doomed"})
	require.NoError(t, err)

	_, err = run(t, "close", s.ID().String(), "--force")
	require.Error(t, err)
	assert.Contains(t, err.Error(), cmdutil.EnvToken)
	assert.False(t, s.IsTerminated())

	token, err := tokens.Sign("ops", []string{"admin"}, time.Now(), time.Minute)
	require.NoError(t, err)
	cmdutil.Flags.Token = token

	out, err := run(t, "close", s.ID().String(), "--force")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "terminated"), out)
	assert.True(t, s.IsTerminated())
}

func TestServiceTable_Sorted(t *testing.T) {
	table := ServiceTable{
		"Read":          {Total: 3, Errors: 1},
		"CreateSession": {Total: 1},
	}
	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"CreateSession", "1", "0"}, rows[0])
	assert.Equal(t, []string{"Read", "3", "1"}, rows[1])
}
