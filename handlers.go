package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
)

// issueTokenPair mints the access/refresh pair for a user.
func (a *App) issueTokenPair(u *User, refreshTTL time.Duration) (access, refresh string, err error) {
	access, err = a.codec.IssueForUser(u, TokenKindAuth, a.cfg.AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = a.codec.IssueForUser(u, TokenKindRefresh, refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		a.respondError(w, errValidation("Passwords do not match", "confirmPassword"))
		return
	}
	if a.cfg.MinPasswordScore > 0 && req.Password != "" {
		if res := EvaluateStrength(req.Password); res.Score < a.cfg.MinPasswordScore {
			a.respondError(w, errInvalidPassword("Password is too weak"))
			return
		}
	}

	user, err := a.users.Create(req.Email, req.Password)
	if err != nil {
		a.respondError(w, err)
		return
	}

	access, refresh, err := a.issueTokenPair(user, a.cfg.RefreshTokenTTL)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"user":         user.Public(),
		"accessToken":  access,
		"refreshToken": refresh,
		"expiresIn":    int64(a.cfg.AccessTokenTTL / time.Second),
	})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	var missing []string
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		a.respondError(w, errMissingFields(missing...))
		return
	}
	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		a.respondError(w, errInvalidEmail())
		return
	}

	key := "login:" + clientIP(r)
	res := a.logins.Check(key, a.cfg.RateLimitMaxAttempts, a.cfg.RateLimitWindow)
	if !res.Allowed {
		a.respondError(w, errRateLimited(time.Duration(res.RetryAfterSeconds)*time.Second))
		return
	}

	user, err := a.users.FindByEmail(email)
	if err != nil {
		a.respondError(w, err)
		return
	}
	// Same code whether the account is unknown or the password is wrong, so
	// the login path cannot be used to enumerate accounts.
	if user == nil || !a.users.VerifyPassword(user, req.Password) {
		a.respondError(w, errAuth(CodeTokenInvalid, "Invalid email or password"))
		return
	}
	a.logins.Reset(key)

	refreshTTL := a.cfg.RefreshTokenTTL
	if req.RememberMe {
		refreshTTL = a.cfg.RememberMeTTL
	}
	access, refresh, err := a.issueTokenPair(user, refreshTTL)
	if err != nil {
		a.respondError(w, err)
		return
	}
	now := time.Now()
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"user":         user.Public(),
		"accessToken":  access,
		"refreshToken": refresh,
		"session": map[string]interface{}{
			"issuedAt":   now.Unix(),
			"expiresAt":  now.Add(a.cfg.AccessTokenTTL).Unix(),
			"rememberMe": req.RememberMe,
		},
	})
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	// A public endpoint with a missing body field is a malformed request,
	// not an auth failure, hence 400.
	if req.RefreshToken == "" {
		e := errMissingFields("refreshToken")
		e.Code = CodeTokenMissing
		e.Message = "Refresh token is required"
		a.respondError(w, e)
		return
	}

	user, _, err := a.resolveRefreshUser(req.RefreshToken)
	if err != nil {
		a.respondError(w, err)
		return
	}
	access, err := a.codec.IssueForUser(user, TokenKindAuth, a.cfg.AccessTokenTTL)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"accessToken": access,
		"expiresIn":   int64(a.cfg.AccessTokenTTL / time.Second),
	})
}

// HandleLogout exists for client symmetry only. Tokens are stateless and
// cannot be invalidated server-side before expiry; real revocation would
// need a jti-keyed blacklist store.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := userFromContext(r.Context()); ok {
		log.Printf("logout: %s", user.Email)
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"loggedOut": true,
		"note":      "Tokens are stateless; discard them client-side to end the session",
	})
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	claims, cok := claimsFromContext(r.Context())
	if !ok || !cok {
		a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
		return
	}
	token := map[string]interface{}{
		"kind": claims.Kind,
	}
	if claims.IssuedAt != nil {
		token["issuedAt"] = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		token["expiresAt"] = claims.ExpiresAt.Unix()
		rem := claims.ExpiresAt.Unix() - time.Now().Unix()
		if rem < 0 {
			rem = 0
		}
		token["remainingSeconds"] = rem
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"user":  user.Public(),
		"token": token,
	})
}

// HandleValidate inspects a token supplied in the body. Validity is data,
// not an HTTP error: the response is always 200 unless the field is absent.
func (a *App) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	if req.Token == "" {
		a.respondError(w, errMissingFields("token"))
		return
	}

	claims, err := a.codec.Verify(req.Token)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, ErrTokenExpired):
			reason = "expired"
		case errors.Is(err, ErrTokenNotYetValid):
			reason = "not yet valid"
		}
		writeSuccess(w, http.StatusOK, map[string]interface{}{
			"valid":  false,
			"reason": reason,
		})
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"userId":    claims.UserID,
		"email":     claims.Email,
		"kind":      claims.Kind,
		"expiresAt": claims.ExpiresAt.Unix(),
	})
}

func (a *App) HandleCheckPasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	if req.Password == "" {
		a.respondError(w, errMissingFields("password"))
		return
	}

	res := EvaluateStrength(req.Password)
	threshold := a.cfg.MinPasswordScore
	if threshold <= 0 {
		threshold = DefaultMinPasswordScore
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"score":        res.Score,
		"strength":     res.Strength,
		"feedback":     res.Feedback,
		"isAcceptable": res.Score >= threshold,
	})
}
