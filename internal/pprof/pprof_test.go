package pprof

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/codefionn/ronkey/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logger.Logger {
	return logger.NewWithWriter(logger.LevelNone, io.Discard, "")
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{HTTPAddr: "127.0.0.1:0"}.Enabled())
	assert.True(t, Config{CPUProfile: "cpu.out"}.Enabled())
}

func TestRouterServesProfiles(t *testing.T) {
	ts := httptest.NewServer(Router())
	defer ts.Close()

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/goroutine", "/debug/pprof/heap"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestHandlerLifecycle(t *testing.T) {
	cpuPath := filepath.Join(t.TempDir(), "profiles", "cpu.out")
	h := NewHandler(Config{HTTPAddr: "127.0.0.1:0", CPUProfile: cpuPath}, quietLogger())

	require.NoError(t, h.Start())
	require.NotNil(t, h.Addr())

	resp, err := http.Get("http://" + h.Addr().String() + "/debug/pprof/cmdline")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.Nil(t, h.Addr())

	info, err := os.Stat(cpuPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
