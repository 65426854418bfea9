package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Machine-readable error codes returned to clients.
const (
	CodeMissingFields   = "MISSING_REQUIRED_FIELDS"
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidEmail    = "USER_INVALID_EMAIL"
	CodeInvalidPassword = "USER_INVALID_PASSWORD"
	CodeUserExists      = "USER_ALREADY_EXISTS"
	CodeUserNotFound    = "USER_NOT_FOUND"
	CodeNotFound        = "NOT_FOUND"
	CodeTokenMissing    = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid    = "AUTH_TOKEN_INVALID"
	CodeTokenExpired    = "AUTH_TOKEN_EXPIRED"
	CodeCredentials     = "AUTH_CREDENTIALS_INVALID"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeDatabase        = "DATABASE_ERROR"
	CodeDBConnection    = "DATABASE_CONNECTION_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// APIError is the one error type that crosses the handler boundary. Every
// expected failure (auth, validation, conflict, rate limit, database) is an
// APIError with Operational set; anything else is treated as a defect and
// collapsed to INTERNAL_ERROR before it reaches the client.
type APIError struct {
	Code        string
	Message     string
	Status      int
	Fields      []string
	RetryAfter  time.Duration
	Operational bool
	Err         error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func apiError(code string, status int, message string) *APIError {
	return &APIError{Code: code, Status: status, Message: message, Operational: true}
}

func errMissingFields(fields ...string) *APIError {
	e := apiError(CodeMissingFields, http.StatusBadRequest, "Required fields are missing")
	e.Fields = fields
	return e
}

func errValidation(message string, fields ...string) *APIError {
	e := apiError(CodeValidation, http.StatusBadRequest, message)
	e.Fields = fields
	return e
}

func errInvalidEmail() *APIError {
	return apiError(CodeInvalidEmail, http.StatusBadRequest, "Email address is not valid")
}

func errInvalidPassword(message string) *APIError {
	return apiError(CodeInvalidPassword, http.StatusBadRequest, message)
}

func errAuth(code, message string) *APIError {
	return apiError(code, http.StatusUnauthorized, message)
}

func errForbidden(message string) *APIError {
	return apiError(CodeCredentials, http.StatusForbidden, message)
}

func errConflict(message string) *APIError {
	return apiError(CodeUserExists, http.StatusConflict, message)
}

func errNotFound(message string) *APIError {
	return apiError(CodeNotFound, http.StatusNotFound, message)
}

func errRateLimited(retryAfter time.Duration) *APIError {
	e := apiError(CodeRateLimited, http.StatusTooManyRequests, "Too many attempts, try again later")
	e.RetryAfter = retryAfter
	return e
}

func errDatabase(err error) *APIError {
	e := apiError(CodeDatabase, http.StatusInternalServerError, "A database error occurred")
	e.Err = err
	return e
}

func errDBConnection(err error) *APIError {
	e := apiError(CodeDBConnection, http.StatusInternalServerError, "Could not reach the database")
	e.Err = err
	return e
}

func errInternal(err error) *APIError {
	return &APIError{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: "An internal error occurred",
		Err:     err,
	}
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
	Details string   `json:"details,omitempty"`
}

// writeAPIError renders the failure envelope. Wrapped causes are exposed in
// details only outside production mode.
func writeAPIError(w http.ResponseWriter, e *APIError, dev bool) {
	body := errorBody{Code: e.Code, Message: e.Message, Fields: e.Fields}
	if dev && e.Err != nil {
		body.Details = e.Err.Error()
	}
	if e.RetryAfter > 0 {
		secs := int(e.RetryAfter / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, e.Status, map[string]interface{}{
		"success": false,
		"error":   body,
	})
}

// writeSuccess writes the success envelope.
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// respondError is the boundary catch-all. Operational errors pass through
// verbatim; anything unrecognized is logged in full and masked as a 500.
func (a *App) respondError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Operational {
		if apiErr.Status >= http.StatusInternalServerError {
			log.Printf("operational error: %v", apiErr)
		}
		writeAPIError(w, apiErr, a.dev)
		return
	}
	log.Printf("unexpected error: %v", err)
	writeAPIError(w, errInternal(err), a.dev)
}
