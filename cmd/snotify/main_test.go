package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, url string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snotify.yaml")
	body := fmt.Sprintf(`
logging:
  level: error
dispatch:
  fallback_order: [hook]
channels:
  - name: hook
    type: webhook
    webhook:
      url: %s
    recipients:
      - id: ops
`, url)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage:")

	errOut.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"bogus"}, &out, &errOut))
	assert.Contains(t, errOut.String(), `unknown command "bogus"`)

	assert.Equal(t, 0, run(context.Background(), []string{"help"}, &out, &errOut))
}

func TestRunCheck(t *testing.T) {
	path := writeConfig(t, "https://hooks.example.com/notify")
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"check", "-config", path}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "config ok: 1 channels, fallback order [hook]")

	bad := writeConfig(t, "ftp://nope")
	assert.Equal(t, 1, run(context.Background(), []string{"check", "-config", bad}, &out, &errOut))
}

func TestRunSend(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	path := writeConfig(t, srv.URL)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"send", "-config", path, "disk", "full"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "delivered via hook [fallback")

	status.Store(http.StatusBadGateway)
	out.Reset()
	code = run(context.Background(), []string{"send", "-config", path, "x"}, &out, &errOut)
	assert.Equal(t, 0, code, "non-strict fallback failure is not an error")
	assert.Contains(t, out.String(), "not delivered")

	code = run(context.Background(), []string{"send", "-config", path, "-strict", "x"}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "all 1 channels failed")

	code = run(context.Background(), []string{"send", "-config", path}, &out, &errOut)
	assert.Equal(t, 2, code)
}
