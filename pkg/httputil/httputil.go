package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// ErrorBody is the wire shape for all error responses.
type ErrorBody struct {
	Error      string            `json:"error"`
	Detail     string            `json:"detail"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// ListResponse is the wire shape for paginated collections.
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// List sends a paginated collection response
func List(w http.ResponseWriter, items interface{}, total int64) {
	JSON(w, http.StatusOK, ListResponse{Items: items, Total: total})
}

// Error sends an error response
func Error(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		JSON(w, appErr.StatusCode, ErrorBody{
			Error:      appErr.Code,
			Detail:     appErr.Message,
			StatusCode: appErr.StatusCode,
			Details:    appErr.Details,
		})
		return
	}

	JSON(w, http.StatusInternalServerError, ErrorBody{
		Error:      "INTERNAL_ERROR",
		Detail:     "an unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	})
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// DecodeJSON decodes the request body into the provided struct
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}
