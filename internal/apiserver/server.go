// Package apiserver is an in-memory implementation of the brewing API for
// local development and integration tests.
package apiserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mmcdole/brewsync/internal/domain"
)

type ctxKey struct{}

// Server holds every user's data in memory.
type Server struct {
	logger *slog.Logger

	mu       sync.Mutex
	users    map[string]string // username -> password; empty map accepts anyone
	userIDs  map[string]string // username -> user id
	tokens   map[string]string // token -> user id
	faults   []int
	recipes  *resource[domain.Recipe, domain.RecipePatch]
	sessions *resource[domain.BrewSession, domain.BrewSessionPatch]
}

// New creates a server. users maps usernames to passwords; nil lets any
// username log in with any non-empty password.
func New(users map[string]string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if users == nil {
		users = map[string]string{}
	}
	s := &Server{
		logger:  logger,
		users:   users,
		userIDs: make(map[string]string),
		tokens:  make(map[string]string),
	}
	s.recipes = newResource[domain.Recipe, domain.RecipePatch](s, nil)
	s.sessions = newResource[domain.BrewSession, domain.BrewSessionPatch](s, s.checkRecipe)
	return s
}

// FailNext makes the next len(statuses) authenticated requests fail with
// the given statuses, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	s.faults = append(s.faults, statuses...)
	s.mu.Unlock()
}

// Router returns the HTTP handler.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/auth/login", s.handleLogin).Methods("POST")

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/recipes", s.recipes.list).Methods("GET")
	api.HandleFunc("/recipes", s.recipes.create).Methods("POST")
	api.HandleFunc("/recipes/{id}", s.recipes.update).Methods("PUT")
	api.HandleFunc("/recipes/{id}", s.recipes.remove).Methods("DELETE")
	api.HandleFunc("/brew-sessions", s.sessions.list).Methods("GET")
	api.HandleFunc("/brew-sessions", s.sessions.create).Methods("POST")
	api.HandleFunc("/brew-sessions/{id}", s.sessions.update).Methods("PUT")
	api.HandleFunc("/brew-sessions/{id}", s.sessions.remove).Methods("DELETE")
	api.HandleFunc("/ingredients", s.handleIngredients).Methods("GET")
	api.HandleFunc("/beer-styles", s.handleStyles).Methods("GET")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) > 0 && s.users[req.Username] != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	userID, ok := s.userIDs[req.Username]
	if !ok {
		userID = "u-" + uuid.NewString()
		s.userIDs[req.Username] = userID
	}
	token := uuid.NewString()
	s.tokens[token] = userID

	s.logger.Info("user logged in", "username", req.Username, "user", userID)
	writeJSON(w, http.StatusOK, domain.AuthResult{Token: token, UserID: userID, Username: req.Username})
}

// authenticate resolves the bearer token and applies injected faults.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		userID, ok := s.tokens[token]
		fault := 0
		if ok && len(s.faults) > 0 {
			fault = s.faults[0]
			s.faults = s.faults[1:]
		}
		s.mu.Unlock()

		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if fault != 0 {
			writeError(w, fault, http.StatusText(fault))
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID)))
	})
}

// UserID returns the id assigned to username at its first login.
func (s *Server) UserID(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.userIDs[username]
	return id, ok
}

// SeedRecipes stores recipes for userID directly.
func (s *Server) SeedRecipes(userID string, recipes ...domain.Recipe) {
	s.recipes.seed(userID, recipes...)
}

// Recipes returns userID's recipes in creation order.
func (s *Server) Recipes(userID string) []domain.Recipe {
	return s.recipes.all(userID)
}

// BrewSessions returns userID's brew sessions in creation order.
func (s *Server) BrewSessions(userID string) []domain.BrewSession {
	return s.sessions.all(userID)
}

func (s *Server) checkRecipe(userID string, session domain.BrewSession) string {
	if _, ok := s.recipes.get(userID, session.RecipeID); !ok {
		return "unknown recipe " + session.RecipeID
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
