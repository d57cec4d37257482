// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parlorlive/parlor/internal/auth"
	"github.com/parlorlive/parlor/internal/database"
	"github.com/parlorlive/parlor/internal/models"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type signinResponse struct {
	Message string     `json:"message"`
	Data    signinData `json:"data"`
}

type signinData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// validPassword requires at least 8 characters with at least one uppercase
// letter, one lowercase letter, and one digit.
func validPassword(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// SignupHandler creates a new user account.
func SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid payload"})
		return
	}

	if !validPassword(req.Password) {
		writeJSON(w, http.StatusBadRequest, messageResponse{
			Message: "Password must be at least 8 characters and include at least one uppercase letter, one lowercase letter, and one number",
		})
		return
	}
	if len(req.Username) < 4 {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Username must be at least 4 characters"})
		return
	}
	if !emailRegex.MatchString(req.Email) {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid email address"})
		return
	}

	ctx := r.Context()
	if _, err := database.GetUserByEmail(ctx, req.Email); err == nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Email already in use"})
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}
	if _, err := database.GetUserByUsername(ctx, req.Username); err == nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Username already in use"})
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
	if err := database.CreateUser(ctx, &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// unique violation: lost a race with a concurrent signup
			writeJSON(w, http.StatusConflict, messageResponse{Message: "Username or email already in use"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User created successfully"})
}

// SigninHandler authenticates a user and issues the session token consumed by
// the websocket identity handshake. The token is returned both as an
// auth_token cookie and in the response body.
func SigninHandler(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid payload"})
		return
	}

	user, err := database.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Incorrect username or password"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}

	token, err := auth.CreateToken(auth.Identity{UserID: user.ID.String(), Username: user.Username})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TokenExpireSec,
	})

	writeJSON(w, http.StatusOK, signinResponse{
		Message: "Sign in successful",
		Data: signinData{
			UserID:   user.ID.String(),
			Username: user.Username,
			Email:    user.Email,
			Token:    token,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
