package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chatsnip/chatsnip/internal/auth"
	"github.com/chatsnip/chatsnip/internal/core"
	"github.com/chatsnip/chatsnip/internal/store"
)

type APIHandler struct {
	ingestService *core.IngestService
	dbStore       *store.SQLiteStore
	logger        *zap.Logger
}

func NewAPIHandler(ingestService *core.IngestService, dbStore *store.SQLiteStore, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		ingestService: ingestService,
		dbStore:       dbStore,
		logger:        logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func statusBody(status string) map[string]string {
	return map[string]string{"status": status}
}

// IngestChatHandler accepts one chat submission authenticated by API key.
func (h *APIHandler) IngestChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrAPIKeyMissing):
			writeJSON(w, http.StatusBadRequest, statusBody("API key missing."))
		case errors.Is(err, core.ErrInvalidAPIKey):
			writeJSON(w, http.StatusForbidden, statusBody("Invalid API key."))
		default:
			h.logger.Error("failed to ingest chat", zap.String("chat", req.ChatID), zap.Error(err))
			http.Error(w, "Failed to process submission", http.StatusInternalServerError)
		}
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusAlreadyReported, statusBody("Duplicate content."))
		return
	}
	writeJSON(w, http.StatusOK, statusBody(result.Status()))
}

type SubmitFragmentRequest struct {
	APIKey              string  `json:"apiKey"`
	ChatID              int64   `json:"chat_id"`
	Filename            *string `json:"filename"`
	ProgrammingLanguage *string `json:"programming_language"`
	SourceCode          string  `json:"source_code"`
}

// SubmitFragmentHandler accepts a single code fragment authenticated by API key.
func (h *APIHandler) SubmitFragmentHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitFragmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, err := h.ingestService.SubmitFragment(req.APIKey, req.ChatID, req.Filename, req.ProgrammingLanguage, req.SourceCode)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrAPIKeyMissing):
			writeJSON(w, http.StatusBadRequest, statusBody("API key missing."))
		case errors.Is(err, core.ErrInvalidAPIKey):
			writeJSON(w, http.StatusForbidden, statusBody("Invalid API key."))
		case errors.Is(err, core.ErrChatNotFound):
			writeJSON(w, http.StatusNotFound, statusBody("Chat not found."))
		case errors.Is(err, core.ErrDuplicateContent):
			writeJSON(w, http.StatusBadRequest, statusBody("Duplicate content."))
		default:
			h.logger.Error("failed to save fragment", zap.Int64("chat", req.ChatID), zap.Error(err))
			http.Error(w, "Failed to save code fragment", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, statusBody("Code fragment saved."))
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.dbStore.GetUserByUsername(username)
		if err != nil {
			h.logger.Error("failed to resolve user", zap.String("username", username), zap.Error(err))
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.dbStore.CreateUser(req.Username, hashedPassword)
	if err != nil {
		h.logger.Error("failed to create user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.dbStore.GetUserByUsername(req.Username)
	if err != nil {
		h.logger.Error("failed to get user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.Username)
	if err != nil {
		h.logger.Error("failed to generate token", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	chats, err := h.dbStore.GetChatsByUserID(userID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.Int64("user", userID), zap.Error(err))
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(chats)
}

type ChatDetailsResponse struct {
	*store.Chat
	Fragments         []store.CodeFragment            `json:"fragments"`
	SelectedFragments map[string]*store.CodeFragment  `json:"selected_fragments"`
	GroupedFragments  map[string][]store.CodeFragment `json:"grouped_fragments"`
	Images            []store.ChatImage               `json:"images"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	chat, err := h.dbStore.GetChatByID(chatID, userID)
	if err != nil {
		h.logger.Error("failed to get chat", zap.Int64("chat", chatID), zap.Error(err))
		http.Error(w, "Failed to get chat details", http.StatusInternalServerError)
		return
	}
	if chat == nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}

	fragments, err := h.dbStore.GetFragmentsByChatID(chatID)
	if err != nil {
		h.logger.Error("failed to get fragments", zap.Int64("chat", chatID), zap.Error(err))
		http.Error(w, "Failed to get chat details", http.StatusInternalServerError)
		return
	}
	images, err := h.dbStore.GetImagesByChatID(chatID)
	if err != nil {
		h.logger.Error("failed to get images", zap.Int64("chat", chatID), zap.Error(err))
		http.Error(w, "Failed to get chat details", http.StatusInternalServerError)
		return
	}

	resp := ChatDetailsResponse{
		Chat:              chat,
		Fragments:         fragments,
		SelectedFragments: core.SelectedFragments(fragments),
		GroupedFragments:  core.GroupFragmentsByFilename(fragments),
		Images:            images,
	}
	json.NewEncoder(w).Encode(resp)
}

type UpdateChatRequest struct {
	Name string `json:"name"`
}

func (h *APIHandler) UpdateChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	var req UpdateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Chat name cannot be empty", http.StatusBadRequest)
		return
	}

	if err := h.dbStore.UpdateChatName(chatID, userID, req.Name); err != nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	if err := h.dbStore.DeleteChat(chatID, userID); err != nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetFragmentHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	fragmentID, err := strconv.ParseInt(chi.URLParam(r, "fragmentID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid fragment ID", http.StatusBadRequest)
		return
	}

	fragment, err := h.dbStore.GetFragmentByID(fragmentID, userID)
	if err != nil {
		h.logger.Error("failed to get fragment", zap.Int64("fragment", fragmentID), zap.Error(err))
		http.Error(w, "Failed to get fragment", http.StatusInternalServerError)
		return
	}
	if fragment == nil {
		http.Error(w, "Fragment not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(fragment)
}

type UpdateFragmentRequest struct {
	Selected bool `json:"selected"`
}

// UpdateFragmentHandler marks a fragment as the version preferred for display.
func (h *APIHandler) UpdateFragmentHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	fragmentID, err := strconv.ParseInt(chi.URLParam(r, "fragmentID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid fragment ID", http.StatusBadRequest)
		return
	}

	var req UpdateFragmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dbStore.UpdateFragmentSelected(fragmentID, userID, req.Selected); err != nil {
		http.Error(w, "Fragment not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteFragmentHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	fragmentID, err := strconv.ParseInt(chi.URLParam(r, "fragmentID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid fragment ID", http.StatusBadRequest)
		return
	}

	if err := h.dbStore.DeleteFragment(fragmentID, userID); err != nil {
		http.Error(w, "Fragment not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	profile, err := h.dbStore.GetProfileByUserID(userID)
	if err != nil || profile == nil {
		h.logger.Error("failed to get profile", zap.Int64("user", userID), zap.Error(err))
		http.Error(w, "Failed to get profile", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(profile)
}

func (h *APIHandler) RegenerateAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	newKey, err := h.dbStore.RegenerateAPIKey(userID)
	if err != nil {
		h.logger.Error("failed to regenerate api key", zap.Int64("user", userID), zap.Error(err))
		http.Error(w, "Failed to regenerate API key", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"api_key": newKey})
}

type BlacklistImageRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

// BlacklistImageHandler flags an image's source URL so future retrievals of
// that URL are suppressed for every chat.
func (h *APIHandler) BlacklistImageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	imageID, err := strconv.ParseInt(chi.URLParam(r, "imageID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid image ID", http.StatusBadRequest)
		return
	}

	req := BlacklistImageRequest{Blacklisted: true}
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.dbStore.SetImageBlacklisted(imageID, userID, req.Blacklisted); err != nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
