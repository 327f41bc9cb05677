package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/identity"
	"github.com/Amchik/archk/internal/service"
	"github.com/Amchik/archk/internal/space"
	"github.com/Amchik/archk/internal/token"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeValidation   = "validation_error"
	ErrCodeTokenExpired = "token_expired"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a typed core error onto the HTTP surface.
//
// Mapping: missing things (including unusable invites, which must stay
// indistinguishable from absent ones) are 404; duplicates are 409;
// permission failures 403; credential and token failures 401; semantic
// validation failures 422. Anything unrecognised is a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken):
		writeUnauthorized(w, err.Error())

	case errors.Is(err, token.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, err.Error())

	case errors.Is(err, authz.ErrForbidden):
		writeForbidden(w, err.Error())

	case errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, identity.ErrInvalidInvite),
		errors.Is(err, space.ErrSpaceNotFound),
		errors.Is(err, space.ErrAccountNotFound),
		errors.Is(err, space.ErrItemNotFound),
		errors.Is(err, service.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())

	case errors.Is(err, identity.ErrNameTaken),
		errors.Is(err, identity.ErrKeyTaken),
		errors.Is(err, identity.ErrNoInvitesLeft),
		errors.Is(err, space.ErrSerialConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, identity.ErrInvalidUsername),
		errors.Is(err, identity.ErrPasswordLength),
		errors.Is(err, space.ErrEmptyTitle),
		errors.Is(err, space.ErrInvalidItemType),
		errors.Is(err, space.ErrKeycardOwner),
		errors.Is(err, service.ErrInvalidTier),
		errors.Is(err, service.ErrSpaceRequired),
		errors.Is(err, service.ErrSpaceForbidden):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())

	default:
		s.logger.Error("unhandled error in HTTP handler", "error", err)
		writeInternalError(w, "internal server error")
	}
}
