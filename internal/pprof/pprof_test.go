package pprof

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	router := httprouter.New()
	Register(router)

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/goroutine?debug=1", "/debug/pprof/heap"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProfilerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	files := Files{
		CPUProfile:  filepath.Join(dir, "cpu", "cpu.pprof"),
		HeapProfile: filepath.Join(dir, "heap", "heap.pprof"),
	}

	p := NewProfiler(files)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	for _, path := range []string{files.CPUProfile, files.HeapProfile} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), path)
	}
}

func TestProfilerNothingConfigured(t *testing.T) {
	p := NewProfiler(Files{})
	assert.NoError(t, p.Start())
	assert.NoError(t, p.Stop())
}
