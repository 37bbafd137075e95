//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/arkvault/testutil"
)

// Environment consumed by the e2e run. ARKVAULT_PASSWORD (the account
// password) is passed through to the binary unchanged.
const (
	envServer  = "ARKVAULT_E2E_SERVER"
	envAccount = "ARKVAULT_E2E_ACCOUNT"
	envFilePW  = "ARKVAULT_E2E_FILE_PASSWORD"
)

var (
	binaryPath string
	account    string
	sandbox    string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	if err := testutil.CheckAllowlist(envAccount); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if os.Getenv(envServer) == "" || os.Getenv("ARKVAULT_PASSWORD") == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s and ARKVAULT_PASSWORD must be set\n", envServer)
		os.Exit(1)
	}

	tmpDir, err := os.MkdirTemp("", "arkvault-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	account = os.Getenv(envAccount)
	sandbox = tmpDir
	binaryPath = filepath.Join(tmpDir, "arkvault")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	build.Dir = root
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// runCLI runs the binary with config and data isolated under the sandbox.
func runCLI(t *testing.T, extraEnv []string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(),
		"ARKVAULT_CONFIG="+filepath.Join(sandbox, "config.toml"),
		"ARKVAULT_DATA_DIR="+filepath.Join(sandbox, "data"),
		"ARKVAULT_SERVER="+os.Getenv(envServer),
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, extraEnv []string, args ...string) (string, string) {
	t.Helper()

	stdout, stderr, err := runCLI(t, extraEnv, args...)
	require.NoError(t, err, "arkvault %v\nstdout: %s\nstderr: %s", args, stdout, stderr)

	return stdout, stderr
}

func TestE2E_RoundTrip(t *testing.T) {
	name := fmt.Sprintf("arkvault-e2e-%d.txt", time.Now().UnixNano())
	content := []byte("Hello from the arkvault e2e test!\n")

	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, content, 0o600))

	t.Cleanup(func() {
		_, _, _ = runCLI(t, nil, "rm", name)
	})

	t.Run("status", func(t *testing.T) {
		stdout, _ := mustRun(t, nil, "status", "--json")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Contains(t, out, "server_health")
	})

	t.Run("login", func(t *testing.T) {
		_, stderr := mustRun(t, nil, "login", account)
		assert.Contains(t, stderr, "Logged in")
	})

	t.Run("put", func(t *testing.T) {
		_, stderr := mustRun(t, nil, "put", src)
		assert.Contains(t, stderr, "Uploaded")
	})

	t.Run("ls", func(t *testing.T) {
		stdout, _ := mustRun(t, nil, "ls")
		assert.Contains(t, stdout, name)
	})

	t.Run("get", func(t *testing.T) {
		stdout, _ := mustRun(t, nil, "get", name, "-o", "-")
		assert.Equal(t, string(content), stdout)
	})

	t.Run("rm", func(t *testing.T) {
		_, stderr := mustRun(t, nil, "rm", name)
		assert.Contains(t, stderr, "Deleted")
	})
}

func TestE2E_CustomPassword(t *testing.T) {
	filePW := os.Getenv(envFilePW)
	if filePW == "" {
		t.Skipf("%s not set", envFilePW)
	}

	env := []string{"ARKVAULT_FILE_PASSWORD=" + filePW}
	name := fmt.Sprintf("arkvault-e2e-custom-%d.txt", time.Now().UnixNano())

	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, []byte("sealed with a file password"), 0o600))

	t.Cleanup(func() {
		_, _, _ = runCLI(t, nil, "rm", name)
	})

	mustRun(t, nil, "login", account)
	mustRun(t, env, "put", "--custom", "--hint", "e2e", src)

	stdout, _ := mustRun(t, env, "get", name, "-o", "-")
	assert.Equal(t, "sealed with a file password", stdout)

	_, _, err := runCLI(t, []string{"ARKVAULT_FILE_PASSWORD=Definitely-Wrong-1!"}, "get", name, "-o", "-")
	require.Error(t, err, "a wrong file password must not decrypt")
}
