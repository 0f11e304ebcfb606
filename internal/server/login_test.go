package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/socket-relay/internal/auth"
	"github.com/rickgao/socket-relay/internal/token"
)

type failingIssuer struct{}

func (failingIssuer) Generate(string) (string, error) { return "", errors.New("entropy exhausted") }

func postLogin(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeLogin(t *testing.T, rec *httptest.ResponseRecorder) auth.LoginResponse {
	t.Helper()
	var resp auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLoginHandler_Success(t *testing.T) {
	store := token.NewStore(token.DefaultConfig(), nil)
	h := LoginHandler(AllowAll{}, store, nil)

	rec := postLogin(t, h, `{"email":"dev@example.com","password":"hunter2"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeLogin(t, rec)
	assert.Equal(t, auth.StatusSuccess, resp.Status)
	assert.Len(t, resp.Token, token.Length)

	user, err := store.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user)
}

func TestLoginHandler_Invalid(t *testing.T) {
	accounts := StaticAccounts{"dev@example.com": "hunter2"}

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"email":"dev@example.com","password":"nope"}`},
		{"unknown user", `{"email":"who@example.com","password":"hunter2"}`},
		{"malformed email", `{"email":"dev","password":"hunter2"}`},
		{"missing email", `{"password":"hunter2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := token.NewStore(token.DefaultConfig(), nil)
			rec := postLogin(t, LoginHandler(accounts, store, nil), tt.body)

			require.Equal(t, http.StatusOK, rec.Code)
			resp := decodeLogin(t, rec)
			assert.Equal(t, auth.StatusInvalid, resp.Status)
			assert.Empty(t, resp.Token)
			assert.Equal(t, 0, store.Len(), "no token issued")
		})
	}
}

func TestLoginHandler_BadBody(t *testing.T) {
	h := LoginHandler(AllowAll{}, token.NewStore(token.DefaultConfig(), nil), nil)

	for _, body := range []string{``, `not json`, `["dev@example.com"]`, `{"email":5}`} {
		rec := postLogin(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestLoginHandler_Methods(t *testing.T) {
	h := LoginHandler(AllowAll{}, token.NewStore(token.DefaultConfig(), nil), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Allow"))
}

func TestLoginHandler_IssuerError(t *testing.T) {
	rec := postLogin(t, LoginHandler(AllowAll{}, failingIssuer{}, nil), `{"email":"dev@example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStaticAccounts(t *testing.T) {
	accounts := StaticAccounts{"dev@example.com": ""}

	assert.True(t, accounts.Check(auth.Credentials{Email: "dev@example.com"}))
	assert.False(t, accounts.Check(auth.Credentials{Email: "dev@example.com", Password: "x"}))
	assert.False(t, accounts.Check(auth.Credentials{Email: "other@example.com"}))
	assert.True(t, AllowAll{}.Check(auth.Credentials{}))
}
