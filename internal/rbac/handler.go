package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vaultview/vaultview/internal/platform/httpx"
)

// Handler exposes the role administration API and the dashboard query.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		validate: validator.New(),
	}
}

// MountRoutes registers the admin routes guarded by the middleware.
func (h *Handler) MountRoutes(r chi.Router, mw Middleware) {
	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireScope(ScopeRoles, LevelView))
			r.Get("/", h.listRoles)
			r.Get("/{roleID}", h.getRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireScope(ScopeRoles, LevelEdit))
			r.Post("/", h.createRole)
			r.Put("/{roleID}", h.updateRole)
			r.Post("/{roleID}/scopes", h.createScopeRule)
			r.Put("/{roleID}/scopes/{scope}", h.updateScopeRule)
			r.Delete("/{roleID}/scopes/{scope}", h.deleteScopeRule)
			r.Post("/{roleID}/scopes/{scope}/fields", h.createFieldRule)
			r.Put("/{roleID}/scopes/{scope}/fields/{field}", h.updateFieldRule)
			r.Delete("/{roleID}/scopes/{scope}/fields/{field}", h.deleteFieldRule)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireScope(ScopeRoles, LevelFull))
			r.Delete("/{roleID}", h.deleteRole)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireScope(ScopeDashboard, LevelView))
		r.Get("/dashboard", h.dashboard)
	})
}

type fieldRulePayload struct {
	FieldName   string `json:"field_name" validate:"required"`
	AccessLevel string `json:"access_level" validate:"required"`
}

type scopeRulePayload struct {
	Scope       string             `json:"scope" validate:"required"`
	AccessLevel string             `json:"access_level" validate:"required"`
	FieldRules  []fieldRulePayload `json:"field_rules" validate:"dive"`
}

type rolePayload struct {
	Name        string             `json:"name" validate:"required"`
	Description string             `json:"description"`
	IsSuper     bool               `json:"is_super"`
	ScopeRules  []scopeRulePayload `json:"scope_rules" validate:"dive"`
}

type fieldRuleResponse struct {
	ID          uuid.UUID `json:"id"`
	FieldName   string    `json:"field_name"`
	AccessLevel string    `json:"access_level"`
}

type scopeRuleResponse struct {
	ID          uuid.UUID           `json:"id"`
	Scope       string              `json:"scope"`
	AccessLevel string              `json:"access_level"`
	FieldRules  []fieldRuleResponse `json:"field_rules,omitempty"`
}

type roleResponse struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	IsSuper     bool                `json:"is_super"`
	ScopeRules  []scopeRuleResponse `json:"scope_rules,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", err.Error())
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRolePayload(w, r)
	if !ok {
		return
	}
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", err.Error())
		return
	}
	in, ok := h.decodeRolePayload(w, r)
	if !ok {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", err.Error())
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createScopeRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", err.Error())
		return
	}
	var payload scopeRulePayload
	if !h.decode(w, r, &payload) {
		return
	}
	in, err := payload.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Scope Rule", err.Error())
		return
	}
	rule, err := h.service.CreateScopeRule(r.Context(), id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toScopeRuleResponse(rule))
}

func (h *Handler) updateScopeRule(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.ruleParams(w, r)
	if !ok {
		return
	}
	var payload struct {
		AccessLevel string `json:"access_level" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	level, err := ParseAccessLevel(payload.AccessLevel)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Access Level", err.Error())
		return
	}
	rule, err := h.service.UpdateScopeRule(r.Context(), id, scope, level)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScopeRuleResponse(rule))
}

func (h *Handler) deleteScopeRule(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.ruleParams(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteScopeRule(r.Context(), id, scope); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createFieldRule(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.ruleParams(w, r)
	if !ok {
		return
	}
	var payload fieldRulePayload
	if !h.decode(w, r, &payload) {
		return
	}
	in, err := payload.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Field Rule", err.Error())
		return
	}
	fr, err := h.service.CreateFieldRule(r.Context(), id, scope, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFieldRuleResponse(fr))
}

func (h *Handler) updateFieldRule(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.ruleParams(w, r)
	if !ok {
		return
	}
	var payload struct {
		AccessLevel string `json:"access_level" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	level, err := ParseAccessLevel(payload.AccessLevel)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Access Level", err.Error())
		return
	}
	fr, err := h.service.UpdateFieldRule(r.Context(), id, scope, chi.URLParam(r, "field"), level)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFieldRuleResponse(fr))
}

func (h *Handler) deleteFieldRule(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.ruleParams(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteFieldRule(r.Context(), id, scope, chi.URLParam(r, "field")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dashboard reports which scopes the current session may act on.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	sc, ok := SessionContextFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	levels, err := h.resolver.AccessibleScopes(r.Context(), sc)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make(map[string]string, len(levels))
	for scope, level := range levels {
		out[scope.String()] = level.String()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"username": sc.Username,
		"scopes":   out,
	})
}

func (h *Handler) decodeRolePayload(w http.ResponseWriter, r *http.Request) (RoleInput, bool) {
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return RoleInput{}, false
	}
	in, err := payload.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role", err.Error())
		return RoleInput{}, false
	}
	return in, true
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

func (h *Handler) ruleParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, Scope, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", err.Error())
		return uuid.Nil, 0, false
	}
	scope, err := ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Scope", err.Error())
		return uuid.Nil, 0, false
	}
	return id, scope, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrScopeRuleNotFound), errors.Is(err, ErrFieldRuleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateRole), errors.Is(err, ErrDuplicateScopeRule), errors.Is(err, ErrDuplicateFieldRule):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Role In Use", err.Error())
	case errors.Is(err, ErrStaleSession):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, ErrStoreUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "")
	default:
		if h.logger != nil {
			h.logger.Error("rbac handler", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	}
}

func (p rolePayload) toInput() (RoleInput, error) {
	in := RoleInput{Name: p.Name, Description: p.Description, IsSuper: p.IsSuper}
	for _, sr := range p.ScopeRules {
		srIn, err := sr.toInput()
		if err != nil {
			return RoleInput{}, err
		}
		in.ScopeRules = append(in.ScopeRules, srIn)
	}
	return in, nil
}

func (p scopeRulePayload) toInput() (ScopeRuleInput, error) {
	scope, err := ParseScope(p.Scope)
	if err != nil {
		return ScopeRuleInput{}, err
	}
	level, err := ParseAccessLevel(p.AccessLevel)
	if err != nil {
		return ScopeRuleInput{}, err
	}
	in := ScopeRuleInput{Scope: scope, Level: level}
	for _, fr := range p.FieldRules {
		frIn, err := fr.toInput()
		if err != nil {
			return ScopeRuleInput{}, err
		}
		in.FieldRules = append(in.FieldRules, frIn)
	}
	return in, nil
}

func (p fieldRulePayload) toInput() (FieldRuleInput, error) {
	level, err := ParseAccessLevel(p.AccessLevel)
	if err != nil {
		return FieldRuleInput{}, err
	}
	return FieldRuleInput{FieldName: p.FieldName, Level: level}, nil
}

func toRoleResponse(role Role) roleResponse {
	out := roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsSuper:     role.IsSuper,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
	for _, sr := range role.ScopeRules {
		out.ScopeRules = append(out.ScopeRules, toScopeRuleResponse(sr))
	}
	return out
}

func toScopeRuleResponse(rule ScopeRule) scopeRuleResponse {
	out := scopeRuleResponse{
		ID:          rule.ID,
		Scope:       rule.Scope.String(),
		AccessLevel: rule.Level.String(),
	}
	for _, fr := range rule.FieldRules {
		out.FieldRules = append(out.FieldRules, toFieldRuleResponse(fr))
	}
	return out
}

func toFieldRuleResponse(fr FieldRule) fieldRuleResponse {
	return fieldRuleResponse{ID: fr.ID, FieldName: fr.FieldName, AccessLevel: fr.Level.String()}
}
