package config

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	r := resolve(DefaultConfig())
	r.ServerURL = "https://vault.example.com"
	r.DataDir = "/var/lib/arkvault"
	r.UserAgent = "custom/1.0"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, "(file: none)")
	assert.Contains(t, out, `server_url = "https://vault.example.com"`)
	assert.Contains(t, out, `data_dir   = "/var/lib/arkvault"`)
	assert.Contains(t, out, `ttl            = "1h0m0s"`)
	assert.Contains(t, out, "parallel_uploads = 4")
	assert.Contains(t, out, `user_agent      = "custom/1.0"`)
	assert.Contains(t, out, `log_format = "auto"`)
}

func TestRenderEffective_OmitsEmptyUserAgent(t *testing.T) {
	r := resolve(DefaultConfig())
	r.SessionTTL = 30 * time.Minute

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))
	assert.NotContains(t, buf.String(), "user_agent")
	assert.Contains(t, buf.String(), `"30m0s"`)
}

// failWriter always fails, to exercise the error path.
type failWriter struct{}

var errWriteFailed = errors.New("write failed")

func (failWriter) Write([]byte) (int, error) {
	return 0, errWriteFailed
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(resolve(DefaultConfig()), failWriter{})
	assert.ErrorIs(t, err, errWriteFailed)
}
