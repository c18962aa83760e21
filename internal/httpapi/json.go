package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/DoyleJ11/fightcard-backend/internal/card"
	"github.com/DoyleJ11/fightcard-backend/internal/hub"
	"github.com/DoyleJ11/fightcard-backend/internal/types"
)

// ErrUnauthorized is returned for a missing or mismatched admin token.
var ErrUnauthorized = types.ErrUnauthorized

const maxBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
}

// writeError answers with {error, detail, rid} and the status matching err.
func writeError(w http.ResponseWriter, rid string, err error) {
	writeJSON(w, statusFor(err), types.ErrorMessage(rid, err))
}

func statusFor(err error) int {
	switch types.Classify(err) {
	case types.CodeValidation, types.CodeBadRequest:
		return http.StatusBadRequest
	case types.CodeUnauthorized:
		return http.StatusUnauthorized
	case types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeGone:
		return http.StatusGone
	}
	if errors.Is(err, card.ErrClosed) || errors.Is(err, hub.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// tokenFrom reads the admin token from Authorization: Bearer, X-Admin-Token or
// ?token=, in that order.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if t := r.Header.Get("X-Admin-Token"); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}
