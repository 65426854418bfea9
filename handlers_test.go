package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cfg "github.com/example/authd/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	c := &cfg.Config{
		Port:                 "8080",
		Env:                  "test",
		DBAdapter:            "memory",
		JWTSecret:            "test-secret",
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		RememberMeTTL:        30 * 24 * time.Hour,
		RateLimitMaxAttempts: 5,
		RateLimitWindow:      15 * time.Minute,
		GlobalRatePerSecond:  1000,
		GlobalRateBurst:      1000,
		MinPasswordLength:    6,
	}
	return NewApp(c, NewMemoryDB())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func dataOf(t *testing.T, out map[string]interface{}) map[string]interface{} {
	t.Helper()
	require.Equal(t, true, out["success"])
	data, ok := out["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object")
	return data
}

func errCodeOf(t *testing.T, out map[string]interface{}) string {
	t.Helper()
	require.Equal(t, false, out["success"])
	errObj, ok := out["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object")
	return errObj["code"].(string)
}

func register(t *testing.T, r http.Handler, email, password string) map[string]interface{} {
	t.Helper()
	rec, out := doJSON(t, r, "POST", "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	return dataOf(t, out)
}

func TestEndToEndAuthFlow(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	data := register(t, r, "user@example.com", "Secret123!")
	access := data["accessToken"].(string)
	refresh := data["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	user := data["user"].(map[string]interface{})
	require.Equal(t, "user@example.com", user["email"])

	rec, out := doJSON(t, r, "GET", "/api/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	me := dataOf(t, out)
	require.Equal(t, "user@example.com", me["user"].(map[string]interface{})["email"])
	token := me["token"].(map[string]interface{})
	require.Equal(t, TokenKindAuth, token["kind"])
	require.Greater(t, token["remainingSeconds"].(float64), float64(0))

	rec, out = doJSON(t, r, "POST", "/api/auth/refresh", map[string]string{"refreshToken": refresh}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := dataOf(t, out)["accessToken"].(string)
	require.NotEqual(t, access, fresh)

	rec, out = doJSON(t, r, "GET", "/api/auth/me", nil, fresh)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user@example.com",
		dataOf(t, out)["user"].(map[string]interface{})["email"])
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	rec, out := doJSON(t, r, "POST", "/api/auth/register", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeMissingFields, errCodeOf(t, out))

	rec, out = doJSON(t, r, "POST", "/api/auth/register", map[string]string{
		"email": "bad-email", "password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeInvalidEmail, errCodeOf(t, out))

	rec, out = doJSON(t, r, "POST", "/api/auth/register", map[string]string{
		"email": "user@example.com", "password": "tiny",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeInvalidPassword, errCodeOf(t, out))

	rec, out = doJSON(t, r, "POST", "/api/auth/register", map[string]string{
		"email": "user@example.com", "password": "Secret123!", "confirmPassword": "Different1!",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeValidation, errCodeOf(t, out))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	register(t, r, "user@example.com", "Secret123!")

	rec, out := doJSON(t, r, "POST", "/api/auth/register", map[string]string{
		"email": "USER@Example.com", "password": "Another1!",
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, CodeUserExists, errCodeOf(t, out))
}

func TestLoginWrongCredentials(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	register(t, r, "user@example.com", "Secret123!")

	// Unknown account and wrong password answer identically
	rec, out := doJSON(t, r, "POST", "/api/auth/login", map[string]string{
		"email": "ghost@example.com", "password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeTokenInvalid, errCodeOf(t, out))

	rec, out = doJSON(t, r, "POST", "/api/auth/login", map[string]string{
		"email": "user@example.com", "password": "wrong-pass",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeTokenInvalid, errCodeOf(t, out))
}

func TestLoginRateLimit(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	register(t, r, "user@example.com", "Secret123!")

	for i := 0; i < 5; i++ {
		rec, _ := doJSON(t, r, "POST", "/api/auth/login", map[string]string{
			"email": "user@example.com", "password": "wrong-pass",
		}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec, out := doJSON(t, r, "POST", "/api/auth/login", map[string]string{
		"email": "user@example.com", "password": "wrong-pass",
	}, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, CodeRateLimited, errCodeOf(t, out))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLoginSuccessForgivesAttempts(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	register(t, r, "user@example.com", "Secret123!")

	for i := 0; i < 4; i++ {
		doJSON(t, r, "POST", "/api/auth/login", map[string]string{
			"email": "user@example.com", "password": "wrong-pass",
		}, "")
	}

	rec, out := doJSON(t, r, "POST", "/api/auth/login", map[string]interface{}{
		"email": "user@example.com", "password": "Secret123!", "rememberMe": true,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, out)
	session := data["session"].(map[string]interface{})
	require.Equal(t, true, session["rememberMe"])

	// Counter was reset, so a fresh window of attempts is available
	rec, _ = doJSON(t, r, "POST", "/api/auth/login", map[string]string{
		"email": "user@example.com", "password": "wrong-pass",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshGate(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	data := register(t, r, "user@example.com", "Secret123!")
	access := data["accessToken"].(string)

	// Missing token on a public endpoint is a malformed request, not 401
	rec, out := doJSON(t, r, "POST", "/api/auth/refresh", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeTokenMissing, errCodeOf(t, out))

	// An auth-kind token is rejected by the refresh gate
	rec, out = doJSON(t, r, "POST", "/api/auth/refresh", map[string]string{"refreshToken": access}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeTokenInvalid, errCodeOf(t, out))
}

func TestValidateEndpoint(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	data := register(t, r, "user@example.com", "Secret123!")
	access := data["accessToken"].(string)

	rec, out := doJSON(t, r, "POST", "/api/auth/validate", map[string]string{"token": access}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := dataOf(t, out)
	require.Equal(t, true, v["valid"])
	require.Equal(t, "user@example.com", v["email"])

	// Invalidity is data, not an HTTP error
	rec, out = doJSON(t, r, "POST", "/api/auth/validate", map[string]string{"token": "garbage"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v = dataOf(t, out)
	require.Equal(t, false, v["valid"])
	require.Equal(t, "malformed", v["reason"])

	rec, out = doJSON(t, r, "POST", "/api/auth/validate", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeMissingFields, errCodeOf(t, out))
}

func TestCheckPasswordStrengthEndpoint(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	rec, out := doJSON(t, r, "POST", "/api/auth/check-password-strength",
		map[string]string{"password": "StrongP@ssw0rd123"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := dataOf(t, out)
	require.Equal(t, StrengthVeryStrong, v["strength"])
	require.Equal(t, true, v["isAcceptable"])

	rec, out = doJSON(t, r, "POST", "/api/auth/check-password-strength",
		map[string]string{"password": "123"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v = dataOf(t, out)
	require.Equal(t, StrengthWeak, v["strength"])
	require.Equal(t, false, v["isAcceptable"])
	require.Greater(t, len(v["feedback"].([]interface{})), 1)

	rec, out = doJSON(t, r, "POST", "/api/auth/check-password-strength", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeMissingFields, errCodeOf(t, out))
}

func TestProfileFlow(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	data := register(t, r, "user@example.com", "Secret123!")
	access := data["accessToken"].(string)

	rec, out := doJSON(t, r, "GET", "/api/user/profile", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user@example.com",
		dataOf(t, out)["user"].(map[string]interface{})["email"])

	rec, out = doJSON(t, r, "PUT", "/api/user/profile", map[string]string{"email": "renamed@example.com"}, access)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "renamed@example.com",
		dataOf(t, out)["user"].(map[string]interface{})["email"])

	rec, out = doJSON(t, r, "PUT", "/api/user/profile", map[string]string{"nickname": "zed"}, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, CodeValidation, errCodeOf(t, out))

	rec, out = doJSON(t, r, "PUT", "/api/user/password", map[string]string{
		"currentPassword": "wrong", "newPassword": "Changed123!",
	}, access)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeCredentials, errCodeOf(t, out))

	rec, _ = doJSON(t, r, "PUT", "/api/user/password", map[string]string{
		"currentPassword": "Secret123!", "newPassword": "Changed123!",
	}, access)
	require.Equal(t, http.StatusOK, rec.Code)

	// Old password is gone, new one works; token claims keep the old email
	// snapshot, which is accepted stale-cache behavior
	rec, _ = doJSON(t, r, "POST", "/api/auth/login", map[string]string{
		"email": "renamed@example.com", "password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, r, "POST", "/api/auth/login", map[string]string{
		"email": "renamed@example.com", "password": "Changed123!",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	data := register(t, r, "user@example.com", "Secret123!")
	access := data["accessToken"].(string)

	rec, out := doJSON(t, r, "DELETE", "/api/user", map[string]string{"password": "wrong"}, access)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeCredentials, errCodeOf(t, out))

	rec, _ = doJSON(t, r, "DELETE", "/api/user", map[string]string{"password": "Secret123!"}, access)
	require.Equal(t, http.StatusOK, rec.Code)

	// The still-valid token now points at a vanished user
	rec, out = doJSON(t, r, "GET", "/api/auth/me", nil, access)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeUserNotFound, errCodeOf(t, out))
}

func TestOwnershipGate(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	one := register(t, r, "one@example.com", "Secret123!")
	two := register(t, r, "two@example.com", "Secret123!")
	accessOne := one["accessToken"].(string)
	idOne := int64(one["user"].(map[string]interface{})["id"].(float64))
	idTwo := int64(two["user"].(map[string]interface{})["id"].(float64))

	rec, out := doJSON(t, r, "GET", fmt.Sprintf("/api/users/%d", idOne), nil, accessOne)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "one@example.com",
		dataOf(t, out)["user"].(map[string]interface{})["email"])

	rec, out = doJSON(t, r, "GET", fmt.Sprintf("/api/users/%d", idTwo), nil, accessOne)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, CodeCredentials, errCodeOf(t, out))
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	data := register(t, r, "user@example.com", "Secret123!")
	access := data["accessToken"].(string)

	// Anonymous logout is fine
	rec, out := doJSON(t, r, "POST", "/api/auth/logout", map[string]string{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, dataOf(t, out)["loggedOut"])

	// Authenticated logout works too
	rec, _ = doJSON(t, r, "POST", "/api/auth/logout", map[string]string{}, access)
	require.Equal(t, http.StatusOK, rec.Code)

	// The optional gate still rejects a bad token outright
	rec, out = doJSON(t, r, "POST", "/api/auth/logout", map[string]string{}, "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, CodeTokenInvalid, errCodeOf(t, out))

	// Logout revokes nothing: the token still authenticates
	rec, _ = doJSON(t, r, "GET", "/api/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)
	r := app.routes()

	rec, _ := doJSON(t, r, "GET", "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, r, "GET", "/ready", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out := doJSON(t, r, "GET", "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.GreaterOrEqual(t, out["requests"].(float64), float64(2))
}
