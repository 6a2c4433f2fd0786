package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

type createUserRequest struct {
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

type userResponse struct {
	User      *store.User      `json:"user"`
	Namespace *store.Namespace `json:"namespace"`
}

// handleAdminCreateUser creates a user and its personal namespace in
// one transaction. The namespace name is the username.
func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	name := core.CanonicalizeName(req.Name)
	if err := core.ValidateSlug(name); err != nil {
		JSONError(w, KindBadRequest, "invalid user name")
		return
	}

	now := time.Now().UTC()
	user := &store.User{
		ID:        core.NewID(),
		IsAdmin:   req.IsAdmin,
		CreatedAt: now,
	}
	userID := user.ID
	ns := &store.Namespace{
		ID:          core.NewID(),
		Name:        name,
		Kind:        store.NamespaceKindPersonal,
		OwnerUserID: &userID,
		CreatedAt:   now,
	}
	user.PrimaryNamespaceID = ns.ID

	if err := s.store.CreateUserWithNamespace(user, ns); err != nil {
		if errors.Is(err, store.ErrConflict) {
			JSONError(w, KindConflict, "name already in use")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, userResponse{User: user, Namespace: ns})
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePage(r)

	users, err := s.store.ListUsers(perPage, (page-1)*perPage)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	total, err := s.store.CountUsers()
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	JSONPage(w, users, page, perPage, total)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.store.GetUser(id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if user == nil {
		JSONError(w, KindNotFound, "user not found")
		return
	}

	// Remove the personal namespace's repo directories before the row
	// cascade makes them orphans for the sweeper.
	refs, err := s.store.ListAllRepoRefs()
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if err := s.store.DeleteUser(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "user not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	for _, ref := range refs {
		if ref.NamespaceID == user.PrimaryNamespaceID {
			s.repos.Remove(ref.NamespaceID, ref.RepoID)
		}
	}

	JSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type createTokenRequest struct {
	Description *string `json:"description,omitempty"`
}

type tokenCreatedResponse struct {
	Token     string       `json:"token"`
	TokenInfo *store.Token `json:"token_info"`
}

// handleAdminCreateUserToken mints a token for the given user. The
// plaintext appears only in this response.
func (s *Server) handleAdminCreateUserToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.store.GetUser(id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if user == nil {
		JSONError(w, KindNotFound, "user not found")
		return
	}

	var req createTokenRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	plaintext, token, err := s.store.GenerateToken(&user.ID, req.Description)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, tokenCreatedResponse{Token: plaintext, TokenInfo: token})
}

func (s *Server) handleAdminListTokens(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePage(r)

	tokens, err := s.store.ListTokens(perPage, (page-1)*perPage)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	total, err := s.store.CountTokens()
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	JSONPage(w, tokens, page, perPage, total)
}

func (s *Server) handleAdminRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

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

type createNamespaceRequest struct {
	Name      string `json:"name"`
	RepoLimit *int   `json:"repo_limit,omitempty"`
}

// handleAdminCreateNamespace creates a shared namespace. Personal
// namespaces exist only through user creation.
func (s *Server) handleAdminCreateNamespace(w http.ResponseWriter, r *http.Request) {
	var req createNamespaceRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	name := core.CanonicalizeName(req.Name)
	if err := core.ValidateSlug(name); err != nil {
		JSONError(w, KindBadRequest, "invalid namespace name")
		return
	}
	if req.RepoLimit != nil && *req.RepoLimit < 0 {
		JSONError(w, KindBadRequest, "repo_limit must be non-negative")
		return
	}

	ns := &store.Namespace{
		ID:        core.NewID(),
		Name:      name,
		Kind:      store.NamespaceKindShared,
		RepoLimit: req.RepoLimit,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateNamespace(ns); err != nil {
		if errors.Is(err, store.ErrConflict) {
			JSONError(w, KindConflict, "namespace name already in use")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, ns)
}

func (s *Server) handleAdminListNamespaces(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePage(r)

	namespaces, err := s.store.ListNamespaces(perPage, (page-1)*perPage)
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
}

func (s *Server) handleAdminDeleteNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := s.resolveNamespace(chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ns == nil {
		JSONError(w, KindNotFound, "namespace not found")
		return
	}
	if ns.Kind == store.NamespaceKindPersonal {
		JSONError(w, KindUnprocessableEntity, "personal namespaces are deleted with their user")
		return
	}

	refs, err := s.store.ListAllRepoRefs()
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if err := s.store.DeleteNamespace(ns.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "namespace not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	for _, ref := range refs {
		if ref.NamespaceID == ns.ID {
			s.repos.Remove(ref.NamespaceID, ref.RepoID)
		}
	}

	JSON(w, http.StatusOK, map[string]string{"deleted": ns.ID})
}

type namespaceGrantRequest struct {
	NamespaceID string   `json:"namespace_id"`
	Allow       []string `json:"allow"`
}

type namespaceGrantResponse struct {
	UserID      string    `json:"user_id"`
	NamespaceID string    `json:"namespace_id"`
	Allow       []string  `json:"allow"`
	GrantedAt   time.Time `json:"granted_at"`
}

// handleAdminUpsertNamespaceGrant sets the scope mask a user holds on
// a namespace, replacing any existing grant.
func (s *Server) handleAdminUpsertNamespaceGrant(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	user, err := s.store.GetUser(userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if user == nil {
		JSONError(w, KindNotFound, "user not found")
		return
	}

	var req namespaceGrantRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	scopes, err := store.ParseScopes(req.Allow)
	if err != nil {
		JSONError(w, KindBadRequest, "unknown scope in allow list")
		return
	}
	if scopes == 0 {
		JSONError(w, KindBadRequest, "allow list must not be empty")
		return
	}

	ns, err := s.resolveNamespace(req.NamespaceID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ns == nil {
		JSONError(w, KindNotFound, "namespace not found")
		return
	}

	grant := &store.NamespaceGrant{
		UserID:      user.ID,
		NamespaceID: ns.ID,
		Scopes:      scopes,
		GrantedAt:   time.Now().UTC(),
	}
	if err := s.store.UpsertNamespaceGrant(grant); err != nil {
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, namespaceGrantResponse{
		UserID:      grant.UserID,
		NamespaceID: grant.NamespaceID,
		Allow:       grant.Scopes.Strings(),
		GrantedAt:   grant.GrantedAt,
	})
}

func (s *Server) handleAdminDeleteNamespaceGrant(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	ns, err := s.resolveNamespace(chi.URLParam(r, "namespace"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ns == nil {
		JSONError(w, KindNotFound, "namespace not found")
		return
	}

	if err := s.store.DeleteNamespaceGrant(userID, ns.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "grant not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"revoked": ns.ID})
}
