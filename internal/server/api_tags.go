package server

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	ns, ok := s.namespaceFromQuery(w, r, store.ScopeNamespaceRead)
	if !ok {
		return
	}

	page, perPage := parsePage(r)
	tags, err := s.store.ListTags(ns.ID, perPage, (page-1)*perPage)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	total, err := s.store.CountTags(ns.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	JSONPage(w, tags, page, perPage, total)
}

type createTagRequest struct {
	Namespace string  `json:"namespace"`
	Name      string  `json:"name"`
	Color     *string `json:"color,omitempty"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	name := core.CanonicalizeName(req.Name)
	if err := core.ValidateSlug(name); err != nil {
		JSONError(w, KindBadRequest, "invalid tag name")
		return
	}
	if req.Color != nil && !hexColorPattern.MatchString(*req.Color) {
		JSONError(w, KindBadRequest, "color must be a #rrggbb value")
		return
	}

	ns, ok := s.authorizedNamespace(w, r, req.Namespace, store.ScopeNamespaceWrite)
	if !ok {
		return
	}

	tag := &store.Tag{
		ID:          core.NewID(),
		NamespaceID: ns.ID,
		Name:        name,
		Color:       req.Color,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateTag(tag); err != nil {
		if errors.Is(err, store.ErrConflict) {
			JSONError(w, KindConflict, "tag name already in use")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, tag)
}

func (s *Server) tagFromRequest(w http.ResponseWriter, r *http.Request, required store.Scope) (*store.Tag, bool) {
	tag, err := s.store.GetTagByID(chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	if tag == nil {
		JSONError(w, KindNotFound, "tag not found")
		return nil, false
	}

	ns, err := s.store.GetNamespace(tag.NamespaceID)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}

	p := GetPrincipal(r.Context())
	allowed, err := s.authorizeNamespace(p, ns, required)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	if !allowed {
		JSONError(w, KindForbidden, "insufficient scope")
		return nil, false
	}
	return tag, true
}

type updateTagRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	var req updateTagRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	tag, ok := s.tagFromRequest(w, r, store.ScopeNamespaceWrite)
	if !ok {
		return
	}

	if req.Name != nil {
		name := core.CanonicalizeName(*req.Name)
		if err := core.ValidateSlug(name); err != nil {
			JSONError(w, KindBadRequest, "invalid tag name")
			return
		}
		tag.Name = name
	}
	if req.Color != nil {
		if !hexColorPattern.MatchString(*req.Color) {
			JSONError(w, KindBadRequest, "color must be a #rrggbb value")
			return
		}
		tag.Color = req.Color
	}

	if err := s.store.UpdateTag(tag); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			JSONError(w, KindConflict, "tag name already in use")
		case errors.Is(err, store.ErrNotFound):
			JSONError(w, KindNotFound, "tag not found")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	JSON(w, http.StatusOK, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	tag, ok := s.tagFromRequest(w, r, store.ScopeNamespaceWrite)
	if !ok {
		return
	}

	if err := s.store.DeleteTag(tag.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "tag not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"deleted": tag.ID})
}
