package actors

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vaultview/vaultview/internal/platform/httpx"
	"github.com/vaultview/vaultview/internal/rbac"
)

// Handler wires HTTP endpoints for actor administration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers actor routes guarded by the rbac middleware.
func (h *Handler) MountRoutes(r chi.Router, mw rbac.Middleware) {
	r.Route("/actors", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireScope(rbac.ScopeActors, rbac.LevelView))
			r.Get("/", h.listActors)
			r.Get("/{actorID}", h.getActor)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireScope(rbac.ScopeActors, rbac.LevelEdit))
			r.Post("/", h.createActor)
			r.Put("/{actorID}", h.updateActor)
			r.Post("/{actorID}/lock", h.lockActor)
			r.Post("/{actorID}/unlock", h.unlockActor)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireScope(rbac.ScopeActors, rbac.LevelFull))
			r.Delete("/{actorID}", h.deleteActor)
		})
	})
}

// actorResponse deliberately omits the password hash.
type actorResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	RoleID    uuid.UUID `json:"role_id"`
	IsLocked  bool      `json:"is_locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Handler) listActors(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListActors(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]actorResponse, 0, len(result))
	for _, actor := range result {
		out = append(out, toActorResponse(actor))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getActor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.actorID(w, r)
	if !ok {
		return
	}
	actor, err := h.service.GetActor(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActorResponse(actor))
}

func (h *Handler) createActor(w http.ResponseWriter, r *http.Request) {
	var in ActorInput
	if !h.decode(w, r, &in) {
		return
	}
	actor, err := h.service.CreateActor(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toActorResponse(actor))
}

func (h *Handler) updateActor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var in ActorInput
	if !h.decode(w, r, &in) {
		return
	}
	actor, err := h.service.UpdateActor(r.Context(), id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActorResponse(actor))
}

func (h *Handler) lockActor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.actorID(w, r)
	if !ok {
		return
	}
	actor, err := h.service.Lock(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActorResponse(actor))
}

func (h *Handler) unlockActor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.actorID(w, r)
	if !ok {
		return
	}
	actor, err := h.service.Unlock(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActorResponse(actor))
}

func (h *Handler) deleteActor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteActor(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "actorID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Actor ID", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrActorNotFound), errors.Is(err, rbac.ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateActor):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("actors handler", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	}
}

func toActorResponse(actor Actor) actorResponse {
	return actorResponse{
		ID:        actor.ID,
		Username:  actor.Username,
		RoleID:    actor.RoleID,
		IsLocked:  actor.IsLocked,
		CreatedAt: actor.CreatedAt,
		UpdatedAt: actor.UpdatedAt,
	}
}
