package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/auth"
	"github.com/volleyhq/volley/internal/database"
	"github.com/volleyhq/volley/internal/models"
)

// resolvedUser is the identity a websocket connection plays under.
type resolvedUser struct {
	ID       uuid.UUID
	Username string
	Guest    bool
}

// resolveUser authenticates the request's auth_token cookie. Without a valid
// token the connection gets a guest identity: a persisted ephemeral user when
// the database is connected, an in-memory one otherwise. The guest token is
// set as a cookie so reconnects within the grace period keep the same seat.
// Must run before the websocket upgrade, while headers can still be written.
func resolveUser(w http.ResponseWriter, r *http.Request) (resolvedUser, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		idStr, err := auth.AuthenticateJWT(token)
		if err == nil {
			id, parseErr := uuid.Parse(idStr)
			if parseErr != nil {
				return resolvedUser{}, errors.New("invalid user id in token")
			}
			username := "Player"
			if database.DB != nil {
				if u, dbErr := database.GetUserByID(r.Context(), id); dbErr == nil {
					username = u.Username
				}
			}
			return resolvedUser{ID: id, Username: username}, nil
		}
		log.Warnf("auth token rejected, minting guest: %v", err)
	}
	return mintGuest(w, r)
}

func mintGuest(w http.ResponseWriter, r *http.Request) (resolvedUser, error) {
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "Guest"
	}

	var id uuid.UUID
	if database.DB != nil {
		u, err := database.CreateEphemeralUser(r.Context(), username)
		if err != nil {
			return resolvedUser{}, err
		}
		id = u.ID
	} else {
		id = uuid.New()
	}

	token, err := auth.CreateJWT(id.String())
	if err != nil {
		return resolvedUser{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return resolvedUser{ID: id, Username: username, Guest: true}, nil
}

// CreateUserHandler registers a permanent account.
func CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}

	if err := database.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		log.Errorf("failed to create user: %v", err)
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}
	user.Password = ""
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler verifies credentials and returns a JWT, also set as the
// auth_token cookie the websocket dispatcher reads.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := database.AuthenticateUser(context.Background(), req.Email, req.Password)
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
		MaxAge:   int(auth.TokenTTL.Seconds()),
	})

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
