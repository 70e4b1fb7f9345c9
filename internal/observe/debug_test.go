// file: internal/observe/debug_test.go

package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnablePprof_EmptyAddrDisabled(t *testing.T) {
	assert.Nil(t, EnablePprof(""))
}

func TestPprofMux_ServesIndexOnly(t *testing.T) {
	mux := pprofMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
