package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maxiofs/ps3/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxAllowance_NoHeaderStillAttachesTask(t *testing.T) {
	registry, err := sandbox.NewRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	var sawTask bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawTask = sandbox.TaskFromContext(r.Context())
	})

	handler := SandboxAllowance(registry)(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, sawTask)
}

func TestSandboxAllowance_ValidHeaderAllowsOwner(t *testing.T) {
	registry, err := sandbox.NewRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	owner, err := registry.Checkout(context.Background())
	require.NoError(t, err)

	var gotTask sandbox.TaskID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTask, _ = sandbox.TaskFromContext(r.Context())
	})

	handler := SandboxAllowance(registry)(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SandboxOwnerHeader, sandbox.EncodeMetadata(owner))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	resolved, ok := registry.LookupOwner(gotTask)
	require.True(t, ok)
	assert.Equal(t, owner, resolved)
}

func TestSandboxAllowance_GarbledHeaderIsSwallowed(t *testing.T) {
	registry, err := sandbox.NewRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := SandboxAllowance(registry)(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SandboxOwnerHeader, "not valid base64!!")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
