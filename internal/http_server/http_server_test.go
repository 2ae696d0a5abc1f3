package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"CallCoordinator/internal/auth"
	"CallCoordinator/internal/entity/user"
	calljournal "CallCoordinator/internal/repository/call_journal"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth map[string]user.Identity

func (s stubAuth) Authenticate(_ context.Context, credential string) (user.Identity, error) {
	id, ok := s[credential]
	if !ok {
		return user.Identity{}, auth.ErrAuthentication
	}
	return id, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestBuildResponse(t *testing.T) {
	v := validator.New()
	verr := v.Struct(calljournal.ListFilter{Limit: 1000})
	require.Error(t, verr)

	cases := []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"ok", nil, http.StatusOK, "data"},
		{"not found", fmt.Errorf("get: %w", calljournal.ErrNotFound), http.StatusNotFound, "errors"},
		{"bad request", fmt.Errorf("%w: limit", ErrBadRequest), http.StatusBadRequest, "errors"},
		{"validation", verr, http.StatusUnprocessableEntity, "errors"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "errors"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			buildResponse([]string{"x"}, rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, decodeBody(t, rec), tc.key)
		})
	}
}

func TestBuildResponseValidationFields(t *testing.T) {
	err := validator.New().Struct(calljournal.ListFilter{Limit: 1000})
	rec := httptest.NewRecorder()
	buildResponse(nil, rec, err)

	body := decodeBody(t, rec)
	errs, ok := body["errors"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "field max 500", errs["Limit"])
}

func TestRequireAdmin(t *testing.T) {
	s := &HttpServer{auth: stubAuth{
		"admin-token": {UserID: "a1", Name: "Ada", Role: user.RoleAdmin},
		"doc-token":   {UserID: "d1", Name: "Dre", Role: user.RoleDoctor},
	}}
	var reached int
	h := s.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached++
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"unknown", "nope", http.StatusUnauthorized},
		{"not admin", "doc-token", http.StatusForbidden},
		{"admin", "admin-token", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, 1, reached)
}

func TestHealthWhileClosing(t *testing.T) {
	s := &HttpServer{}
	rec := httptest.NewRecorder()
	s.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s.closing.Store(true)
	rec = httptest.NewRecorder()
	s.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shutting_down", decodeBody(t, rec)["status"])
}
