package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/store"
)

type meResponse struct {
	Admin bool         `json:"admin"`
	User  *store.User  `json:"user,omitempty"`
	Token *store.Token `json:"token"`
}

// handleMe introspects the caller's token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	JSON(w, http.StatusOK, meResponse{
		Admin: p.IsAdmin(),
		User:  p.User,
		Token: p.Token,
	})
}

// handleCreateToken lets a user mint a token for themselves. Disabled
// unless auth.allow_user_tokens is set; token issuance is otherwise
// admin-driven.
func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	if p.User == nil {
		JSONError(w, KindUnprocessableEntity, "the admin token is minted with admin init")
		return
	}
	if !s.cfg.Auth.AllowUserTokens {
		JSONError(w, KindForbidden, "self-service tokens are disabled")
		return
	}

	var req createTokenRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	plaintext, token, err := s.store.GenerateToken(&p.User.ID, req.Description)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, tokenCreatedResponse{Token: plaintext, TokenInfo: token})
}

// handleListOwnTokens lists the caller's tokens. The admin root token
// has no owning user and sees an empty list; /admin/tokens covers it.
func (s *Server) handleListOwnTokens(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	if p.User == nil {
		JSON(w, http.StatusOK, []store.Token{})
		return
	}

	tokens, err := s.store.ListUserTokens(p.User.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []store.Token{}
	}
	JSON(w, http.StatusOK, tokens)
}

// handleDeleteToken revokes one of the caller's own tokens. Admin uses
// the /admin/tokens surface instead.
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	token, err := s.store.GetTokenByID(id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if token == nil || p.User == nil || token.UserID == nil || *token.UserID != p.User.ID {
		JSONError(w, KindNotFound, "token not found")
		return
	}

	if err := s.store.RevokeToken(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "token not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"revoked": id})
}

// handleListNamespaces lists the namespaces the caller can see: for
// admin every namespace, for a user their own plus granted ones.
func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	page, perPage := parsePage(r)
	offset := (page - 1) * perPage

	if p.IsAdmin() {
		namespaces, err := s.store.ListNamespaces(perPage, offset)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		total, err := s.store.CountNamespaces()
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		JSONPage(w, namespaces, page, perPage, total)
		return
	}

	namespaces, total, err := s.store.ListAccessibleNamespaces(p.User.ID, perPage, offset)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	JSONPage(w, namespaces, page, perPage, total)
}
