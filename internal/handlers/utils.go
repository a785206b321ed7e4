// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/endritv/murlan/internal/errs"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// httpStatusFor maps a domain error code to the HTTP status of its surface.
func httpStatusFor(code errs.Code) int {
	switch code {
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.LobbyNotFound, errs.GameNotFound:
		return http.StatusNotFound
	case errs.LobbyNotHost, errs.NotPlayerInGame:
		return http.StatusForbidden
	case errs.InsufficientFunds:
		return http.StatusPaymentRequired
	case errs.LobbyFull, errs.LobbyNotOpen, errs.LobbyNotFull, errs.AlreadyIn, errs.GameNotActive:
		return http.StatusConflict
	case errs.InvalidMode, errs.InvalidStake, errs.InvalidCard, errs.MissingRequestID:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError renders an errs.Error as a JSON body with its code.
func writeDomainError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	writeJSON(w, httpStatusFor(code), map[string]interface{}{
		"error":   string(code),
		"message": err.Error(),
	})
}
