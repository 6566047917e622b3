// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"gitpulse/internal/apperr"
	"gitpulse/internal/chat"
	"gitpulse/internal/model"
	"gitpulse/internal/stats"
	"gitpulse/internal/store"
	"gitpulse/internal/syncer"
)

// Handler is the container for API dependencies.
type Handler struct {
	store     store.Store
	syncer    *syncer.Syncer
	assistant *chat.Assistant
	logger    *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(st store.Store, sync *syncer.Syncer, assistant *chat.Assistant, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:     st,
		syncer:    sync,
		assistant: assistant,
		logger:    logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/health", h.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)
		r.Post("/auth/github", h.linkGithub)

		r.Get("/repositories", h.listRepositories)
		r.Post("/repositories/sync", h.syncRepositories)
		r.Get("/repositories/{repoID}/activities", h.listActivities)
		r.Post("/repositories/{repoID}/sync-activities", h.syncActivities)

		r.Get("/reminders", h.listReminders)
		r.Post("/reminders", h.createReminder)
		r.Patch("/reminders/{id}", h.updateReminder)
		r.Delete("/reminders/{id}", h.deleteReminder)

		r.Post("/chat", h.chat)
		r.Get("/conversations", h.listConversations)

		r.Get("/stats", h.getStats)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// register handles POST /api/auth/register.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("Failed to hash password", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	user, err := h.store.CreateUser(r.Context(), &model.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Name:         req.Name,
		AvatarURL:    req.AvatarURL,
	})
	if err != nil {
		if isUniqueViolation(err) {
			respondWithError(w, http.StatusBadRequest, "Username is already taken")
			return
		}
		h.logger.Error("Failed to create user", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"userId":  user.ID,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login handles POST /api/auth/login.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondWithError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.logger.Error("Failed to look up user", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to login")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if err := h.store.TouchLastLogin(r.Context(), user.ID); err != nil {
		h.logger.Warn("Failed to record last login", "user_id", user.ID, "error", err)
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    user,
	})
}

type linkGithubRequest struct {
	UserID         int64  `json:"userId"`
	GithubUsername string `json:"githubUsername"`
	GithubToken    string `json:"githubToken"`
}

// linkGithub handles POST /api/auth/github.
func (h *Handler) linkGithub(w http.ResponseWriter, r *http.Request) {
	var req linkGithubRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.GithubUsername == "" || req.GithubToken == "" {
		respondWithError(w, http.StatusBadRequest, "githubUsername and githubToken are required")
		return
	}

	user, err := h.store.LinkGithubAccount(r.Context(), req.UserID, req.GithubUsername, req.GithubToken)
	if err != nil {
		h.respondStoreError(w, err, "Failed to link GitHub account")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message": "GitHub account linked successfully",
		"user":    user,
	})
}

// listRepositories handles GET /api/repositories?userId=.
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUserID(w, r)
	if !ok {
		return
	}

	repos, err := h.store.GetRepositoriesByUser(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err, "Failed to fetch repositories")
		return
	}
	respondWithJSON(w, http.StatusOK, emptyIfNil(repos))
}

type syncRequest struct {
	UserID int64 `json:"userId"`
}

// syncRepositories handles POST /api/repositories/sync.
func (h *Handler) syncRepositories(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	repos, err := h.syncer.SyncRepositories(r.Context(), req.UserID)
	if err != nil {
		h.respondSyncError(w, err, "Failed to synchronize repositories")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message":      "Repositories synchronized successfully",
		"repositories": emptyIfNil(repos),
	})
}

// listActivities handles GET /api/repositories/{repoID}/activities.
func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	repoID, err := parseID(chi.URLParam(r, "repoID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid repository ID")
		return
	}

	activities, err := h.store.GetActivitiesByRepository(r.Context(), repoID)
	if err != nil {
		h.respondStoreError(w, err, "Failed to fetch repository activities")
		return
	}
	respondWithJSON(w, http.StatusOK, emptyIfNil(activities))
}

// syncActivities handles POST /api/repositories/{repoID}/sync-activities.
func (h *Handler) syncActivities(w http.ResponseWriter, r *http.Request) {
	repoID, err := parseID(chi.URLParam(r, "repoID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid repository ID")
		return
	}

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	activities, err := h.syncer.SyncActivities(r.Context(), req.UserID, repoID)
	if err != nil {
		h.respondSyncError(w, err, "Failed to synchronize activities")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message":    "Activities synchronized successfully",
		"activities": emptyIfNil(activities),
	})
}

// listReminders handles GET /api/reminders?userId=.
func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUserID(w, r)
	if !ok {
		return
	}

	reminders, err := h.store.GetRemindersByUser(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err, "Failed to fetch reminders")
		return
	}
	respondWithJSON(w, http.StatusOK, emptyIfNil(reminders))
}

type createReminderRequest struct {
	UserID       int64     `json:"userId"`
	RepositoryID int64     `json:"repositoryId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DueDate      time.Time `json:"dueDate"`
	Completed    bool      `json:"completed"`
	Priority     string    `json:"priority"`
}

// createReminder handles POST /api/reminders.
func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" {
		respondWithError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.DueDate.IsZero() {
		respondWithError(w, http.StatusBadRequest, "dueDate is required")
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}

	reminder, err := h.store.CreateReminder(r.Context(), &model.Reminder{
		UserID:       req.UserID,
		RepositoryID: req.RepositoryID,
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		Completed:    req.Completed,
		Priority:     req.Priority,
	})
	if err != nil {
		h.respondStoreError(w, err, "Failed to create reminder")
		return
	}
	respondWithJSON(w, http.StatusCreated, reminder)
}

// updateReminderRequest holds a partial update; nil fields are left as-is.
// Advancing DueDate is how a reminder is snoozed.
type updateReminderRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Completed   *bool      `json:"completed"`
	Priority    *string    `json:"priority"`
}

// updateReminder handles PATCH /api/reminders/{id}.
func (h *Handler) updateReminder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid reminder ID")
		return
	}

	var req updateReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	reminder, err := h.store.GetReminder(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "Failed to update reminder")
		return
	}

	if req.Title != nil {
		reminder.Title = *req.Title
	}
	if req.Description != nil {
		reminder.Description = *req.Description
	}
	if req.DueDate != nil {
		reminder.DueDate = *req.DueDate
	}
	if req.Completed != nil {
		reminder.Completed = *req.Completed
	}
	if req.Priority != nil {
		reminder.Priority = *req.Priority
	}

	updated, err := h.store.UpdateReminder(r.Context(), reminder)
	if err != nil {
		h.respondStoreError(w, err, "Failed to update reminder")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

// deleteReminder handles DELETE /api/reminders/{id}.
func (h *Handler) deleteReminder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid reminder ID")
		return
	}

	if err := h.store.DeleteReminder(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "Failed to delete reminder")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Reminder deleted successfully"})
}

type chatRequest struct {
	UserID  int64  `json:"userId"`
	Message string `json:"message"`
}

// chat handles POST /api/chat.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, conversation, err := h.assistant.Respond(r.Context(), req.UserID, req.Message)
	if err != nil {
		h.respondStoreError(w, err, "Failed to generate chat response")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message":        "Chat response generated",
		"response":       reply,
		"conversationId": conversation.ID,
	})
}

// listConversations handles GET /api/conversations?userId=.
func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUserID(w, r)
	if !ok {
		return
	}

	conversations, err := h.store.GetConversationsByUser(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err, "Failed to fetch conversations")
		return
	}
	respondWithJSON(w, http.StatusOK, emptyIfNil(conversations))
}

// getStats handles GET /api/stats?userId=.
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUserID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		h.respondStoreError(w, err, "Failed to fetch stats")
		return
	}
	repos, err := h.store.GetRepositoriesByUser(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err, "Failed to fetch stats")
		return
	}
	activities, err := h.store.GetActivitiesByUser(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err, "Failed to fetch stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats.Compute(repos, activities, time.Now()))
}

// queryUserID parses the userId query parameter, responding 400 on failure.
func (h *Handler) queryUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := parseID(r.URL.Query().Get("userId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return 0, false
	}
	return userID, true
}

// respondStoreError maps storage and precondition errors to HTTP statuses.
// Internal causes are logged server-side only.
func (h *Handler) respondStoreError(w http.ResponseWriter, err error, publicMsg string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, apperr.ErrNotLinked):
		respondWithError(w, http.StatusBadRequest, "GitHub account not linked")
	case apperr.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(publicMsg, "error", err)
		respondWithError(w, http.StatusInternalServerError, publicMsg)
	}
}

// respondSyncError additionally hides upstream failure details behind a
// generic 500.
func (h *Handler) respondSyncError(w http.ResponseWriter, err error, publicMsg string) {
	var ue *apperr.UpstreamError
	if errors.As(err, &ue) {
		h.logger.Error(publicMsg, "error", err)
		respondWithError(w, http.StatusInternalServerError, publicMsg)
		return
	}
	h.respondStoreError(w, err, publicMsg)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id", "must be a positive integer")
	}
	return id, nil
}

// decodeJSON strictly decodes the request body, rejecting unknown fields
// before any side effect is attempted.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("body", err.Error())
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// emptyIfNil keeps empty list responses as [] rather than null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
