package main

import (
	"encoding/json"
	"net/http"
)

// Profile handlers. All of these sit behind RequireAuth, so the user is
// always present in the context.

func (a *App) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": user.Public()})
}

func (a *App) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
		return
	}
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	updated, err := a.users.Update(user, req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": updated.Public()})
}

func (a *App) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, errValidation("Invalid request body"))
		return
	}
	var missing []string
	if req.CurrentPassword == "" {
		missing = append(missing, "currentPassword")
	}
	if req.NewPassword == "" {
		missing = append(missing, "newPassword")
	}
	if len(missing) > 0 {
		a.respondError(w, errMissingFields(missing...))
		return
	}
	if !a.users.VerifyPassword(user, req.CurrentPassword) {
		a.respondError(w, errAuth(CodeCredentials, "Current password is incorrect"))
		return
	}
	if a.cfg.MinPasswordScore > 0 {
		if res := EvaluateStrength(req.NewPassword); res.Score < a.cfg.MinPasswordScore {
			a.respondError(w, errInvalidPassword("Password is too weak"))
			return
		}
	}
	updated, err := a.users.UpdatePassword(user, req.NewPassword)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": updated.Public()})
}

// HandleDeleteAccount removes the account after re-verifying the current
// password.
func (a *App) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
		return
	}
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
	if !a.users.VerifyPassword(user, req.Password) {
		a.respondError(w, errAuth(CodeCredentials, "Password is incorrect"))
		return
	}
	if err := a.users.Delete(user); err != nil {
		a.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

// HandleGetUser serves a user record by id; RequireOwner guarantees the id
// in the path belongs to the caller.
func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": user.Public()})
}
