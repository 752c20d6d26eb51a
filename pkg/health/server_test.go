package health_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishanjain/ift/pkg/health"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReady(t *testing.T) {
	s := health.NewServer(health.Config{Logger: logr.Discard()})
	h := s.Handler()

	for _, path := range []string{"/ready", "/readyz"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "not ready\n", rec.Body.String())
	}

	s.SetReady(true)
	for _, path := range []string{"/ready", "/readyz"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ready\n", rec.Body.String())
	}
}

func TestHealthFollowsRequiredBindings(t *testing.T) {
	testCases := map[string]struct {
		required bool
		addrs    []string
		err      error
		healthy  bool
	}{
		"required with addresses": {
			required: true,
			addrs:    []string{"10.0.0.1"},
			healthy:  true,
		},
		"required and empty": {
			required: true,
			healthy:  false,
		},
		"required and failing": {
			required: true,
			err:      errors.New("interface not found"),
			healthy:  false,
		},
		"optional and empty": {
			required: false,
			healthy:  true,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := health.NewServer(health.Config{Logger: logr.Discard()})
			s.RegisterBinding("api", "GetPrivateInterfaces", tc.required)
			s.UpdateBinding("api", tc.addrs, tc.err)

			assert.Equal(t, tc.healthy, s.Healthy())
			want := http.StatusOK
			if !tc.healthy {
				want = http.StatusServiceUnavailable
			}
			assert.Equal(t, want, get(t, s.Handler(), "/healthz").Code)
		})
	}
}

func TestHealthWithNoBindings(t *testing.T) {
	s := health.NewServer(health.Config{Logger: logr.Discard()})
	assert.True(t, s.Healthy())
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health").Code)
}

func TestRequiredBindingInactiveUntilResolved(t *testing.T) {
	s := health.NewServer(health.Config{Logger: logr.Discard()})
	s.RegisterBinding("api", "GetAllInterfaces", true)
	assert.False(t, s.Healthy())

	s.UnregisterBinding("api")
	assert.True(t, s.Healthy())

	// Updates for unknown bindings are ignored.
	s.UpdateBinding("api", nil, nil)
	assert.True(t, s.Healthy())
}

func TestStatus(t *testing.T) {
	s := health.NewServer(health.Config{Logger: logr.Discard()})
	s.SetReady(true)
	s.RegisterBinding("api", "GetPrivateInterfaces | FilterIPv4", true)
	s.RegisterBinding("lo", `GetInterface "lo"`, false)
	s.UpdateBinding("api", []string{"10.0.0.1"}, nil)
	s.UpdateBinding("lo", nil, errors.New("interface not found"))
	s.UpdateBinding("lo", nil, errors.New("interface not found"))

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	require.Len(t, status.Bindings, 2)

	api := status.Bindings["api"]
	assert.True(t, api.Active)
	assert.Equal(t, []string{"10.0.0.1"}, api.Addresses)
	assert.Equal(t, int64(1), api.Resolutions)
	assert.Zero(t, api.Errors)

	lo := status.Bindings["lo"]
	assert.True(t, lo.Active)
	assert.Equal(t, int64(2), lo.Resolutions)
	assert.Equal(t, int64(2), lo.Errors)
	assert.Equal(t, "interface not found", lo.LastError)
}
