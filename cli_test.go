package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/arkvault/internal/config"
	"github.com/tonimelisma/arkvault/internal/engine"
	"github.com/tonimelisma/arkvault/internal/vaultapi"
	"github.com/tonimelisma/arkvault/internal/vaulterr"
)

const (
	testEmail        = "u@x.com"
	testPassword     = "Correct-Horse-Battery-9"
	testFilePassword = "Tr0ub4dor&3-horse"
)

// cliEnv runs root commands in-process against a fake vault, with config,
// data directory and password sources pointed at the test.
type cliEnv struct {
	t          *testing.T
	vault      *cliVault
	url        string
	dir        string
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	vault := newCLIVault()
	srv := httptest.NewServer(vault)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	e := &cliEnv{
		t:          t,
		vault:      vault,
		url:        srv.URL,
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
	}

	t.Setenv(config.EnvConfig, e.configPath)
	t.Setenv(config.EnvDataDir, filepath.Join(dir, "data"))
	t.Setenv(config.EnvServer, "")
	t.Setenv(config.EnvPassword, testPassword)
	t.Setenv(config.EnvFilePassword, "")

	prevOpts, prevTerm, prevOut := engineOptions, stdinIsTerminal, promptOut
	engineOptions = []engine.Option{engine.WithKDFIterations(8), engine.WithArgon2(1, 1024, 1)}
	stdinIsTerminal = func() bool { return false }
	promptOut = io.Discard

	t.Cleanup(func() {
		engineOptions, stdinIsTerminal, promptOut = prevOpts, prevTerm, prevOut
		statusOut = os.Stderr
		resolvedCfg = nil
	})

	return e
}

// run executes one command line as a fresh process would. stdin feeds
// prompts that the environment does not answer.
func (e *cliEnv) run(stdin string, args ...string) (stdout, status string, err error) {
	e.t.Helper()

	var out, st bytes.Buffer

	promptIn = bufio.NewReader(strings.NewReader(stdin))
	statusOut = &st

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&st)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(context.Background())

	return out.String(), st.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()

	out, status, err := e.run("", args...)
	require.NoError(e.t, err, "arkvault %s\nstatus: %s", strings.Join(args, " "), status)

	return out
}

func (e *cliEnv) register() {
	e.t.Helper()
	e.mustRun("--server", e.url, "register", testEmail)
}

func (e *cliEnv) writeFile(name, content string) string {
	e.t.Helper()

	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), s)

	return m
}

func TestCLI_NoServerConfigured(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "ls")
	require.ErrorIs(t, err, errNoServer)
	assert.Contains(t, errorHint(err), "--server")
}

func TestCLI_RegisterSavesServerAndLogsIn(t *testing.T) {
	e := newCLIEnv(t)

	_, status, err := e.run("", "--server", e.url, "register", "  U@X.com ")
	require.NoError(t, err)
	assert.Contains(t, status, "Registered and logged in as u@x.com")

	data, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `server_url = "`+e.url+`"`)

	// Later commands find the server in the config file.
	st := decodeJSON(t, e.mustRun("status", "--json"))
	assert.Equal(t, e.url, st["server"])
	assert.Equal(t, testEmail, st["identity"])
	assert.Equal(t, loginStateLoggedIn, st["login"])
	assert.Equal(t, true, st["engine"].(map[string]any)["ready"])
	assert.Equal(t, "healthy", st["server_health"].(map[string]any)["status"])
}

func TestCLI_RegisterExistingAccount(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	_, _, err := e.run("", "register", testEmail)
	require.ErrorIs(t, err, vaulterr.ErrValidation)
	require.ErrorIs(t, err, vaultapi.ErrConflict)
}

func TestCLI_RegisterWeakPasswordNeverReachesServer(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv(config.EnvPassword, "short")

	_, _, err := e.run("", "--server", e.url, "register", testEmail)
	require.ErrorIs(t, err, vaulterr.ErrWeakPassword)

	_, _, err = e.run("", "--server", e.url, "login", testEmail)
	require.ErrorIs(t, err, vaulterr.ErrAuthenticationRequired, "account was never created")
}

func TestCLI_LoginJSON(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	u := decodeJSON(t, e.mustRun("login", testEmail, "--json"))
	assert.Equal(t, testEmail, u["email"])
	assert.Equal(t, true, u["is_approved"])
}

func TestCLI_LoginPasswordFromStdin(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	t.Setenv(config.EnvPassword, "")

	_, status, err := e.run(testPassword+"\n", "login", testEmail)
	require.NoError(t, err)
	assert.Contains(t, status, "Logged in as u@x.com")
}

func TestCLI_AccountRoundTrip(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	src := e.writeFile("notes.txt", "the quick brown fox")

	_, status, err := e.run("", "put", src)
	require.NoError(t, err)
	assert.Contains(t, status, "Uploaded notes.txt")
	assert.True(t, e.vault.hasFile("notes.txt"))

	dst := filepath.Join(e.dir, "restored.txt")
	e.mustRun("get", "notes.txt", "-o", dst)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(downloadPermissions), info.Mode().Perm())

	assert.Equal(t, "the quick brown fox", e.mustRun("get", "notes.txt", "-o", "-"))
}

func TestCLI_CustomRoundTrip(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	t.Setenv(config.EnvFilePassword, testFilePassword)

	src := e.writeFile("secret.txt", "custom sealed")
	e.mustRun("put", "--custom", "--hint", "battery", src)

	listing := decodeJSON(t, e.mustRun("ls", "--json"))
	files := listing["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "custom", files[0].(map[string]any)["password_type"])
	assert.Equal(t, "battery", files[0].(map[string]any)["password_hint"])

	assert.Equal(t, "custom sealed", e.mustRun("get", "secret.txt", "-o", "-"))
}

func TestCLI_CustomPasswordFromPrompt(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	t.Setenv(config.EnvFilePassword, testFilePassword)

	src := e.writeFile("secret.txt", "prompted")
	e.mustRun("put", "--custom", src)

	t.Setenv(config.EnvFilePassword, "")

	out, _, err := e.run(testFilePassword+"\n", "get", "secret.txt", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "prompted", out)

	_, _, err = e.run("Wrong-Password-42!\n", "get", "secret.txt", "-o", "-")
	require.ErrorIs(t, err, vaulterr.ErrDecryptionFailed)
}

func TestCLI_CustomWeakPasswordNeverUploads(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	t.Setenv(config.EnvFilePassword, "weak")

	_, _, err := e.run("", "put", "--custom", e.writeFile("a.txt", "x"))
	require.ErrorIs(t, err, vaulterr.ErrWeakPassword)

	uploads, _, _ := e.vault.counts()
	assert.Zero(t, uploads)
}

func TestCLI_HintRequiresCustom(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "put", "--hint", "nope", e.writeFile("a.txt", "x"))
	require.ErrorIs(t, err, vaulterr.ErrValidation)
}

func TestCLI_PutBatch(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	paths := []string{
		e.writeFile("one.txt", "1"),
		e.writeFile("two.txt", "22"),
		e.writeFile("three.txt", "333"),
	}

	e.mustRun(append([]string{"put"}, paths...)...)

	uploads, _, _ := e.vault.counts()
	assert.Equal(t, 3, uploads)

	listing := decodeJSON(t, e.mustRun("ls", "--json"))
	assert.Len(t, listing["files"], 3)
}

func TestCLI_PutBatchJoinsPerFileFailures(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	missing := filepath.Join(e.dir, "missing.txt")

	_, _, err := e.run("", "put", missing, e.writeFile("ok.txt", "fine"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.True(t, e.vault.hasFile("ok.txt"), "other files still upload")
}

func TestCLI_PutRefreshesExpiredAccessToken(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	e.vault.expireAccessTokens()

	e.mustRun("put", e.writeFile("late.txt", "after expiry"))
	assert.True(t, e.vault.hasFile("late.txt"))
}

func TestCLI_GetRefusesToOverwrite(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	e.mustRun("put", e.writeFile("a.txt", "new"))

	existing := e.writeFile("out.txt", "keep me")

	_, _, err := e.run("", "get", "a.txt", "-o", existing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	e.mustRun("get", "a.txt", "-o", existing, "--force")

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestCLI_GetUnknownFile(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	_, _, err := e.run("", "get", "ghost.txt", "-o", "-")
	require.ErrorIs(t, err, vaulterr.ErrDownloadFailed)
	require.ErrorIs(t, err, vaultapi.ErrNotFound)
}

func TestCLI_Rm(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	e.mustRun("put", e.writeFile("gone.txt", "bye"))

	_, status, err := e.run("", "rm", "gone.txt")
	require.NoError(t, err)
	assert.Contains(t, status, "Deleted gone.txt")
	assert.False(t, e.vault.hasFile("gone.txt"))

	_, _, err = e.run("", "rm", "gone.txt")
	require.ErrorIs(t, err, vaulterr.ErrDeleteFailed)
}

func TestCLI_LsTable(t *testing.T) {
	e := newCLIEnv(t)
	e.register()
	e.mustRun("put", e.writeFile("table.txt", "row"))

	out := e.mustRun("ls")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "table.txt")
	assert.Contains(t, out, "account")
	assert.Contains(t, out, "used")
}

func TestCLI_LogoutClearsLogin(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	e.mustRun("logout")

	_, logouts, _ := e.vault.counts()
	assert.Equal(t, 1, logouts)

	_, _, err := e.run("", "put", e.writeFile("a.txt", "x"))
	require.ErrorIs(t, err, vaulterr.ErrAuthenticationRequired)
	assert.Contains(t, errorHint(err), "arkvault login")

	_, status, err := e.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, status, "Not logged in")
}

func TestCLI_RevokeAll(t *testing.T) {
	e := newCLIEnv(t)
	e.register()

	e.mustRun("revoke-all")

	_, _, revokes := e.vault.counts()
	assert.Equal(t, 1, revokes)

	st := decodeJSON(t, e.mustRun("status", "--json"))
	assert.Equal(t, loginStateLoggedOut, st["login"])

	_, _, err := e.run("", "revoke-all")
	require.ErrorIs(t, err, vaulterr.ErrAuthenticationRequired)
}

func TestCLI_LoginUnknownAccount(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "--server", e.url, "login", "nobody@x.com")
	require.ErrorIs(t, err, vaulterr.ErrAuthenticationRequired)
}

func TestCLI_LoginInvalidEmail(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "--server", e.url, "login", "not-an-email")
	require.ErrorIs(t, err, vaulterr.ErrInvalidEmail)
}

func TestCLI_Strength(t *testing.T) {
	e := newCLIEnv(t)

	res := decodeJSON(t, e.mustRun("strength", "--json"))
	assert.Equal(t, true, res["valid"])
	assert.Equal(t, "Very Strong", res["strength"])
	assert.Empty(t, res["missing"])

	t.Setenv(config.EnvPassword, "abc")

	out := e.mustRun("strength")
	assert.Contains(t, out, "Missing:")
	assert.Contains(t, out, "Not acceptable.")
}

func TestCLI_ConfigShow(t *testing.T) {
	e := newCLIEnv(t)

	cfg := decodeJSON(t, e.mustRun("--server", "https://vault.example.com/", "config", "show", "--json"))
	assert.Equal(t, "https://vault.example.com", cfg["server_url"])
	assert.Equal(t, e.configPath, cfg["config_path"])

	out := e.mustRun("config", "show")
	assert.Contains(t, out, "[session]")
	assert.Contains(t, out, "parallel_uploads = 4")
}

func TestCLI_TOTPSetupUsesStoredIdentity(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "totp-setup")
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	e.register()

	before := e.vault.requestCount()

	res := decodeJSON(t, e.mustRun("totp-setup", "--json"))
	assert.Equal(t, testEmail, res["identity"])
	assert.Equal(t, before, e.vault.requestCount(), "setup material never leaves the machine")
	assert.True(t, strings.HasPrefix(res["url"].(string), "otpauth://totp/"))
	assert.NotEmpty(t, res["backup_codes"])

	_, _, err = e.run("12ab56\n", "totp-setup", "--verify")
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	help := e.mustRun("totp-setup", "--help")
	assert.Contains(t, help, "nothing is sent to the server")
}
