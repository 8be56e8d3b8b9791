package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/app/apperr"
	authapp "ttrpg-tracker/internal/app/auth"
	charapp "ttrpg-tracker/internal/app/character"
	invapp "ttrpg-tracker/internal/app/inventory"
	"ttrpg-tracker/internal/app/realtime"
	"ttrpg-tracker/internal/app/session"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/domain/inventory"
	"ttrpg-tracker/internal/platform/metrics"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	logger      zerolog.Logger
	auth        *authapp.Service
	characters  *charapp.Service
	items       *invapp.Service
	hub         *realtime.Hub
	corsOrigin  string
	maxBodySize int64
	readyChecks map[string]ReadyCheck
	upgrader    websocket.Upgrader
}

type contextKey string

const (
	userIDContextKey      contextKey = "user_id"
	characterIDContextKey contextKey = "character_id"
)

func NewHandler(logger zerolog.Logger, auth *authapp.Service, characters *charapp.Service, items *invapp.Service, hub *realtime.Hub, corsOrigin string, maxBodySize int64) *Handler {
	h := &Handler{
		logger:      logger,
		auth:        auth,
		characters:  characters,
		items:       items,
		hub:         hub,
		corsOrigin:  corsOrigin,
		maxBodySize: maxBodySize,
		readyChecks: map[string]ReadyCheck{},
	}
	h.upgrader = h.newUpgrader()
	return h
}

// AddReadyCheck registers a dependency probed by /readyz.
func (h *Handler) AddReadyCheck(name string, check ReadyCheck) {
	h.readyChecks[name] = check
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(h.cors)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/events/ws", h.eventsWS)

		v1.Group(func(rest chi.Router) {
			rest.Use(middleware.Timeout(20 * time.Second))
			rest.Post("/auth/register", h.register)
			rest.Post("/auth/login", h.login)
			rest.Post("/auth/logout", h.logout)

			rest.Group(func(protected chi.Router) {
				protected.Use(h.authMiddleware)
				protected.Get("/auth/me", h.me)
				protected.Get("/characters", h.listCharacters)
				protected.Post("/characters", h.createCharacter)
				protected.Route("/characters/{characterID}", func(cr chi.Router) {
					cr.Use(h.characterScope)
					cr.Get("/", h.getCharacter)
					cr.Patch("/", h.updateCharacter)
					cr.Delete("/", h.deleteCharacter)
					cr.Get("/inventory", h.listItems)
					cr.Post("/inventory", h.createItem)
					cr.Patch("/inventory/{itemID}", h.updateItem)
					cr.Delete("/inventory/{itemID}", h.deleteItem)
				})
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, check := range h.readyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decodeBody(w, r, &req) {
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decodeBody(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// logout exists so clients have a symmetric endpoint; tokens are stateless.
func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	id, err := h.auth.Identify(r.Context(), uid)
	if err != nil {
		if errors.Is(err, authapp.ErrUserNotFound) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unknown account", Code: codeUnauthorized})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (h *Handler) listCharacters(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	chars, err := h.characters.List(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": chars})
}

func (h *Handler) createCharacter(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	var req struct {
		Name     string `json:"name"`
		ImageURL string `json:"image_url"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	c, err := h.characters.Create(r.Context(), uid, req.Name, req.ImageURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getCharacter(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	c, err := h.characters.Get(r.Context(), uid, cid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) updateCharacter(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	var patch character.Patch
	if !h.decodeBody(w, r, &patch) {
		return
	}
	c, err := h.characters.Update(r.Context(), uid, cid, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCharacter(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	if err := h.characters.Delete(r.Context(), uid, cid); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	items, err := h.items.List(r.Context(), uid, cid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	var req inventory.NewItem
	if !h.decodeBody(w, r, &req) {
		return
	}
	if _, err := h.characters.Get(r.Context(), uid, cid); err != nil {
		h.writeError(w, r, err)
		return
	}
	it, err := h.items.Create(r.Context(), uid, cid, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	iid, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid item id", Code: codeInvalidInput})
		return
	}
	var patch inventory.Patch
	if !h.decodeBody(w, r, &patch) {
		return
	}
	it, err := h.items.Update(r.Context(), uid, cid, iid, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromCtx(r.Context())
	cid, _ := characterIDFromCtx(r.Context())
	iid, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid item id", Code: codeInvalidInput})
		return
	}
	if err := h.items.Delete(r.Context(), uid, cid, iid); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token", Code: codeUnauthorized})
			return
		}
		uid, err := h.auth.ParseToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token", Code: codeUnauthorized})
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// characterScope parses the character id from the path. Ownership comes from
// the path itself: every lookup below is keyed by the caller's user id.
func (h *Handler) characterScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid, err := uuid.Parse(chi.URLParam(r, "characterID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid character id", Code: codeInvalidInput})
			return
		}
		ctx := context.WithValue(r.Context(), characterIDContextKey, cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	uid, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return uid, ok
}

func characterIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	cid, ok := ctx.Value(characterIDContextKey).(uuid.UUID)
	return cid, ok
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (h *Handler) cors(next http.Handler) http.Handler {
	origin := h.corsOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Code: codeInvalidInput})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const (
	codeInvalidInput  = "invalid-input"
	codeLimitExceeded = "limit-exceeded"
	codeNotFound      = "not-found"
	codeUnavailable   = "unavailable"
	codeUnauthorized  = "unauthorized"
	codeInternal      = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps service errors onto status codes and stable error codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooMany authapp.ErrTooManyAttempts
	switch {
	case errors.As(err, &tooMany):
		w.Header().Set("Retry-After", strconv.Itoa(tooMany.Seconds()))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error(), Code: string(session.CodeTooManyRequests)})
	case errors.Is(err, authapp.ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: string(session.CodeInvalidEmail)})
	case errors.Is(err, authapp.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: string(session.CodeWeakPassword)})
	case errors.Is(err, authapp.ErrEmailInUse):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: string(session.CodeEmailInUse)})
	case errors.Is(err, authapp.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: string(session.CodeInvalidCredential)})
	case errors.Is(err, authapp.ErrUserNotFound):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: string(session.CodeUserNotFound)})
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: codeInvalidInput})
	case errors.Is(err, apperr.ErrLimitExceeded):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: codeLimitExceeded})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: codeNotFound})
	case errors.Is(err, apperr.ErrUnavailable):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service unavailable", Code: codeUnavailable})
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: codeInternal})
	}
}
