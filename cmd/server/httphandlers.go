package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/social"
	"example.com/socialfeed/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades hash time against brute-force resistance.
const bcryptCost = 12

type authResponse struct {
	AccountID string               `json:"account_id"`
	Token     string               `json:"token"`
	Me        models.ViewerSummary `json:"me"`
}

// issueSession records a new session row and signs a token naming it.
func (s *Server) issueSession(accountID string) (string, error) {
	sessionID := uuid.NewString()
	if err := s.store.CreateSession(sessionID, accountID, s.sessionTTL); err != nil {
		return "", err
	}

	secret := []byte(os.Getenv("JWT_SECRET"))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"jti":        sessionID,
		"exp":        time.Now().Add(s.sessionTTL).Unix(),
	})
	return token.SignedString(secret)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Account handlers ---

// signupHandler creates an account and opens a session.
// Expects JSON body: {"username": "...", "pass": "...", "pass2": "..."}
func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Username string `json:"username"`
		Pass     string `json:"pass"`
		Pass2    string `json:"pass2"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/signup", "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if body.Username == "" || body.Pass == "" || body.Pass2 == "" {
		writeError(w, http.StatusBadRequest, "All fields are required!")
		return
	}
	if len(body.Username) > 50 {
		writeError(w, http.StatusBadRequest, "username must be 1-50 characters")
		return
	}
	if body.Pass != body.Pass2 {
		writeError(w, http.StatusBadRequest, "Passwords do not match!")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Pass), bcryptCost)
	if err != nil {
		logg.Error("http/signup", "Failed to hash password", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	accountID, err := s.store.CreateAccount(body.Username, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "Username already in use!")
			return
		}
		logg.Error("http/signup", "Failed to create account", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	tokenStr, err := s.issueSession(accountID)
	if err != nil {
		logg.Error("http/signup", "Failed to open session", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	logg.Info("http/signup", "Account created successfully with account_id="+accountID)
	writeJSON(w, http.StatusCreated, authResponse{
		AccountID: accountID,
		Token:     tokenStr,
		Me:        models.Account{ID: accountID, Username: body.Username}.Summary(),
	})
}

// loginHandler authenticates a username/password pair and opens a session.
// Expects JSON body: {"username": "...", "pass": "..."}
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Username string `json:"username"`
		Pass     string `json:"pass"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/login", "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if body.Username == "" || body.Pass == "" {
		writeError(w, http.StatusBadRequest, "All fields are required!")
		return
	}

	acc, err := s.store.GetAccountByUsername(body.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Wrong username or password!")
			return
		}
		logg.Error("http/login", "Failed to load account", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(body.Pass)) != nil {
		writeError(w, http.StatusUnauthorized, "Wrong username or password!")
		return
	}

	tokenStr, err := s.issueSession(acc.ID)
	if err != nil {
		logg.Error("http/login", "Failed to open session", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	logg.Info("http/login", "Login successful for account_id="+acc.ID)
	writeJSON(w, http.StatusOK, authResponse{
		AccountID: acc.ID,
		Token:     tokenStr,
		Me:        acc.Summary(),
	})
}

// logoutHandler destroys the current session.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.store.DeleteSession(sessionID); err != nil {
		logg.Error("http/logout", "Failed to destroy session", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// meHandler returns the viewer's current summary. Clients call this after
// every social-graph mutation and on initial load.
func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	acc, err := s.store.GetAccountByID(accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Failed to get user")
			return
		}
		logg.Error("http/me", "Failed to load account", err)
		writeError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, acc.Summary())
}

// --- Social graph handlers ---

type mutation func(actorID, targetID string) (models.ViewerSummary, error)

// socialHandler decodes {"target_id": "..."} and applies the mutation,
// returning the refreshed viewer summary inline.
func (s *Server) socialHandler(w http.ResponseWriter, r *http.Request, name string, op mutation) {
	type req struct {
		TargetID string `json:"target_id"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/"+name, "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if body.TargetID == "" {
		writeError(w, http.StatusBadRequest, "All fields are required!")
		return
	}

	actorID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	me, err := op(actorID, body.TargetID)
	if err != nil {
		if errors.Is(err, social.ErrSelfTarget) {
			writeError(w, http.StatusBadRequest, "Cannot "+name+" yourself")
			return
		}
		logg.Error("http/"+name, "Mutation failed for account_id="+actorID, err)
		writeError(w, http.StatusInternalServerError, name+" failed")
		return
	}

	logg.Info("http/"+name, "Applied "+name+" for account_id="+actorID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "me": me})
}

func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	s.socialHandler(w, r, "follow", s.social.Follow)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	s.socialHandler(w, r, "unfollow", s.social.Unfollow)
}

func (s *Server) blockHandler(w http.ResponseWriter, r *http.Request) {
	s.socialHandler(w, r, "block", s.social.Block)
}

func (s *Server) unblockHandler(w http.ResponseWriter, r *http.Request) {
	s.socialHandler(w, r, "unblock", s.social.Unblock)
}

// changePasswordHandler verifies the current password before storing a new
// bcrypt hash.
// Expects JSON body: {"old_pass": "...", "new_pass": "...", "new_pass2": "..."}
func (s *Server) changePasswordHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		OldPass  string `json:"old_pass"`
		NewPass  string `json:"new_pass"`
		NewPass2 string `json:"new_pass2"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/password", "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if body.OldPass == "" || body.NewPass == "" || body.NewPass2 == "" {
		writeError(w, http.StatusBadRequest, "All fields are required!")
		return
	}
	if body.NewPass != body.NewPass2 {
		writeError(w, http.StatusBadRequest, "New passwords do not match")
		return
	}

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	acc, err := s.store.GetAccountByID(accountID)
	if err != nil {
		logg.Error("http/password", "Failed to load account", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(body.OldPass)) != nil {
		writeError(w, http.StatusBadRequest, "Current password is incorrect.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.NewPass), bcryptCost)
	if err != nil {
		logg.Error("http/password", "Failed to hash new password", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	if err := s.store.UpdatePasswordHash(accountID, string(hash)); err != nil {
		logg.Error("http/password", "Failed to store new password", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	logg.Info("http/password", "Password changed for account_id="+accountID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password successfully changed."})
}
