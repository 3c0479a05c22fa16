// Package httputil carries the JSON request/response helpers shared by
// the collector's HTTP tooling.
package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the Dropbox-style error envelope: a human summary plus a
// tagged union carrying only the tag.
type APIError struct {
	ErrorSummary string   `json:"error_summary"`
	Error        ErrorTag `json:"error"`
}

// ErrorTag is the ".tag" discriminator of an APIError.
type ErrorTag struct {
	Tag string `json:".tag"`
}

// JSON writes data with the given status. The body is serialized up
// front so an encoding failure becomes a clean 500 instead of a
// truncated response.
func JSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "response serialization failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// Error writes a Dropbox-shaped error body. The tag doubles as the
// leading path segment of the summary, matching the upstream format
// like "invalid_access_token/...".
func Error(w http.ResponseWriter, status int, tag, detail string) {
	JSON(w, status, APIError{ErrorSummary: tag + "/" + detail, Error: ErrorTag{Tag: tag}})
}

// Decode reads the JSON request body into dst. On malformed input it
// answers 400 and returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Error(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}
