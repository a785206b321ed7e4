// internal/handlers/user.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/auth"
	"github.com/endritv/murlan/internal/database"
	"github.com/endritv/murlan/internal/ledger"
	"github.com/endritv/murlan/internal/models"
)

// defaultStartingBalance is the signup grant in minor units (1000.00).
const defaultStartingBalance = 100000

func startingBalance() int64 {
	if raw := os.Getenv("STARTING_BALANCE_CENTS"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			return v
		}
	}
	return defaultStartingBalance
}

// grantStartingBalance credits a fresh account once. The user id keys the
// idempotency, so re-running the grant is harmless.
func (gs *GameServer) grantStartingBalance(ctx context.Context, userID uuid.UUID) {
	amount := startingBalance()
	if amount == 0 {
		return
	}
	if _, err := gs.Ledger.Apply(ctx, userID, amount, ledger.ReasonSignupGrant, "grant:"+userID.String()); err != nil {
		log.Errorf("failed to grant starting balance to %s: %v", userID, err)
	}
}

// EnsureUser resolves the requesting user from the auth cookie, creating an
// ephemeral guest (with its starting balance) when no valid token arrives.
func (gs *GameServer) EnsureUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if userIDStr, err := auth.AuthenticateJWT(token); err == nil {
			userID, parseErr := uuid.Parse(userIDStr)
			if parseErr != nil {
				return uuid.Nil, fmt.Errorf("invalid user ID in token: %w", parseErr)
			}
			if gs.Persist {
				// A valid token can outlive its row; treat a missing
				// user like an expired token and mint a fresh guest.
				if _, err := database.GetUserByID(r.Context(), userID); err != nil {
					log.Warnf("token for unknown user %s, issuing guest", userID)
				} else {
					return userID, nil
				}
			} else {
				return userID, nil
			}
		}
		// Fall through to a fresh guest on an invalid/expired token.
	}

	guest := models.User{
		Username:    "Guest",
		IsEphemeral: true,
	}
	if gs.Persist {
		if err := database.CreateUser(r.Context(), &guest); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create ephemeral user: %w", err)
		}
	} else {
		guest.ID = uuid.New()
	}
	gs.grantStartingBalance(r.Context(), guest.ID)

	token, err := auth.CreateJWT(guest.ID.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ephemeral JWT: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return guest.ID, nil
}

// requireUser is EnsureUser without guest creation: requests to mutating
// endpoints must already carry a valid token.
func requireUser(r *http.Request) (uuid.UUID, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		return uuid.Nil, fmt.Errorf("missing auth_token")
	}
	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(userIDStr)
}

// CreateUserHandler registers a permanent account and credits its signup
// grant.
func CreateUserHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password are required", http.StatusBadRequest)
			return
		}

		user := models.User{
			Email:       req.Email,
			Password:    req.Password,
			Username:    req.Username,
			IsEphemeral: false,
		}

		if err := database.CreateUser(r.Context(), &user); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}
		gs.grantStartingBalance(r.Context(), user.ID)

		user.Password = ""
		writeJSON(w, http.StatusCreated, user)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Balance int64  `json:"balance"`
}

// LoginHandler authenticates an account and returns a session token plus
// the current wallet balance. The token also travels as a cookie.
func LoginHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			log.Warnf("failed to authenticate user: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})

		resp := loginResponse{Token: token}
		if userIDStr, err := auth.AuthenticateJWT(token); err == nil {
			if userID, err := uuid.Parse(userIDStr); err == nil {
				resp.Balance = gs.Ledger.Balance(userID)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// BalanceHandler returns the requesting user's wallet balance and history.
func BalanceHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user_id": userID,
			"balance": gs.Ledger.Balance(userID),
			"history": gs.Ledger.History(userID),
		})
	}
}
