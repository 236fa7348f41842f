// internal/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK sends a 200 JSON response with data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Body{Success: true, Data: data})
}

// Accepted sends a 202 JSON response with data.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, Body{Success: true, Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, Body{Error: msg})
}

func Unauthorized(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusUnauthorized, Body{Error: msg})
}

// Error maps a service error onto its HTTP status.
func Error(w http.ResponseWriter, err error) {
	JSON(w, StatusFor(err), Body{Error: err.Error()})
}

func StatusFor(err error) int {
	switch {
	case appErrors.IsValidation(err):
		return http.StatusBadRequest
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrDuplicateReply):
		return http.StatusConflict
	case appErrors.IsConfiguration(err):
		return http.StatusServiceUnavailable
	case appErrors.IsTransport(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
