package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

// repoFromRequest resolves the {repo} path param and authorizes the
// caller for the required scopes. It writes the error response and
// returns ok=false when the request should stop.
func (s *Server) repoFromRequest(w http.ResponseWriter, r *http.Request, required store.Scope) (*store.Repo, *store.Namespace, bool) {
	repo, ns, err := s.resolveRepo(chi.URLParam(r, "repo"))
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}
	if repo == nil {
		JSONError(w, KindNotFound, "repo not found")
		return nil, nil, false
	}

	p := GetPrincipal(r.Context())
	allowed, err := s.authorizeRepo(p, ns, repo, required)
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}
	if !allowed {
		JSONError(w, KindForbidden, "insufficient scope")
		return nil, nil, false
	}
	return repo, ns, true
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	page, perPage := parsePage(r)
	offset := (page - 1) * perPage

	if nsRef := r.URL.Query().Get("namespace"); nsRef != "" {
		ns, err := s.resolveNamespace(nsRef)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if ns == nil {
			JSONError(w, KindNotFound, "namespace not found")
			return
		}
		allowed, err := s.authorizeNamespace(p, ns, store.ScopeRepoRead)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !allowed {
			JSONError(w, KindForbidden, "insufficient scope")
			return
		}

		repos, err := s.store.ListRepos(ns.ID, perPage, offset)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		total, err := s.store.CountRepos(ns.ID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		JSONPage(w, repos, page, perPage, total)
		return
	}

	if p.IsAdmin() {
		refs, err := s.store.ListAllRepoRefs()
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		total := len(refs)
		repos := []store.Repo{}
		for i := offset; i < total && i < offset+perPage; i++ {
			repo, err := s.store.GetRepoByID(refs[i].RepoID)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if repo != nil {
				repos = append(repos, *repo)
			}
		}
		JSONPage(w, repos, page, perPage, total)
		return
	}

	repos, total, err := s.store.ListAccessibleRepos(p.User.ID, perPage, offset)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	JSONPage(w, repos, page, perPage, total)
}

type createRepoRequest struct {
	Namespace   string  `json:"namespace"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	FolderID    *string `json:"folder_id,omitempty"`
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req createRepoRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	name := core.CanonicalizeName(req.Name)
	if err := core.ValidateRepoName(name); err != nil {
		JSONError(w, KindBadRequest, "invalid repo name")
		return
	}

	ns, err := s.resolveNamespace(req.Namespace)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ns == nil {
		JSONError(w, KindNotFound, "namespace not found")
		return
	}

	p := GetPrincipal(r.Context())
	allowed, err := s.authorizeNamespace(p, ns, store.ScopeRepoWrite)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !allowed {
		JSONError(w, KindForbidden, "insufficient scope")
		return
	}

	if req.FolderID != nil {
		folder, err := s.store.GetFolderByID(*req.FolderID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if folder == nil || folder.NamespaceID != ns.ID {
			JSONError(w, KindUnprocessableEntity, "folder must belong to the repo's namespace")
			return
		}
	}

	now := time.Now().UTC()
	repo := &store.Repo{
		ID:          core.NewID(),
		NamespaceID: ns.ID,
		Name:        name,
		Description: req.Description,
		FolderID:    req.FolderID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateRepo(repo); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			JSONError(w, KindConflict, "repo name already in use")
		case errors.Is(err, store.ErrRepoLimitExceeded):
			JSONError(w, KindConflict, "namespace repo limit reached")
		case errors.Is(err, store.ErrNotFound):
			JSONError(w, KindNotFound, "namespace not found")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	if err := s.repos.Create(ns.ID, repo.ID); err != nil {
		// Compensate so the row never points at a missing directory.
		s.store.DeleteRepo(repo.ID)
		s.internalError(w, r, fmt.Errorf("init repo directory: %w", err))
		return
	}

	setETag(w, repo)
	JSON(w, http.StatusCreated, repo)
}

func setETag(w http.ResponseWriter, repo *store.Repo) {
	w.Header().Set("ETag", fmt.Sprintf("%q", strconv.FormatInt(repo.Version, 10)))
}

// parseIfMatch extracts the expected version from an If-Match header,
// or nil when the header is absent.
func parseIfMatch(r *http.Request) (*int64, error) {
	header := strings.TrimSpace(r.Header.Get("If-Match"))
	if header == "" {
		return nil, nil
	}
	version, err := strconv.ParseInt(strings.Trim(header, `"`), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed If-Match: %w", err)
	}
	return &version, nil
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, _, ok := s.repoFromRequest(w, r, store.ScopeRepoRead)
	if !ok {
		return
	}

	setETag(w, repo)
	JSON(w, http.StatusOK, repo)
}

type updateRepoRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// handleUpdateRepo applies a conditional partial update. Renames need
// repo:admin; description edits need repo:write. If-Match pins the
// version seen by the caller.
func (s *Server) handleUpdateRepo(w http.ResponseWriter, r *http.Request) {
	var req updateRepoRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	required := store.ScopeRepoWrite
	if req.Name != nil {
		required = store.ScopeRepoAdmin
	}
	repo, _, ok := s.repoFromRequest(w, r, required)
	if !ok {
		return
	}

	expected, err := parseIfMatch(r)
	if err != nil {
		JSONError(w, KindBadRequest, "malformed If-Match header")
		return
	}

	if req.Name != nil {
		name := core.CanonicalizeName(*req.Name)
		if err := core.ValidateRepoName(name); err != nil {
			JSONError(w, KindBadRequest, "invalid repo name")
			return
		}
		repo.Name = name
	}
	if req.Description != nil {
		repo.Description = req.Description
	}

	if err := s.store.UpdateRepo(repo, expected); err != nil {
		switch {
		case errors.Is(err, store.ErrVersionMismatch):
			JSONError(w, KindConflict, "repo was modified concurrently")
		case errors.Is(err, store.ErrConflict):
			JSONError(w, KindConflict, "repo name already in use")
		case errors.Is(err, store.ErrNotFound):
			JSONError(w, KindNotFound, "repo not found")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	setETag(w, repo)
	JSON(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	repo, ns, ok := s.repoFromRequest(w, r, store.ScopeRepoAdmin)
	if !ok {
		return
	}

	unlock := s.repos.LockRepo(repo.ID)
	defer unlock()

	// Row first. If directory removal fails the sweeper reconciles at
	// the next startup.
	if err := s.store.DeleteRepo(repo.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "repo not found")
			return
		}
		s.internalError(w, r, err)
		return
	}
	if err := s.repos.Remove(ns.ID, repo.ID); err != nil {
		s.log.WithField("repo_id", repo.ID).WithError(err).Warn("repo directory removal failed")
	}

	JSON(w, http.StatusOK, map[string]string{"deleted": repo.ID})
}

type setRepoFolderRequest struct {
	FolderID *string `json:"folder_id"`
}

// handleSetRepoFolder moves a repo into a folder, or back to the root
// when folder_id is null.
func (s *Server) handleSetRepoFolder(w http.ResponseWriter, r *http.Request) {
	var req setRepoFolderRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	repo, ns, ok := s.repoFromRequest(w, r, store.ScopeRepoAdmin)
	if !ok {
		return
	}

	if req.FolderID != nil {
		folder, err := s.store.GetFolderByID(*req.FolderID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if folder == nil {
			JSONError(w, KindNotFound, "folder not found")
			return
		}
		if folder.NamespaceID != ns.ID {
			JSONError(w, KindUnprocessableEntity, "folder must belong to the repo's namespace")
			return
		}
	}

	if err := s.store.SetRepoFolder(repo.ID, req.FolderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "repo not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	repo.FolderID = req.FolderID
	repo.Version++
	setETag(w, repo)
	JSON(w, http.StatusOK, repo)
}

type attachTagRequest struct {
	TagID string `json:"tag_id"`
}

// resolveTagRef looks up a tag by id, falling back to a name lookup in
// the given namespace.
func (s *Server) resolveTagRef(namespaceID, ref string) (*store.Tag, error) {
	tag, err := s.store.GetTagByID(ref)
	if err != nil || tag != nil {
		return tag, err
	}
	return s.store.GetTagByName(namespaceID, core.CanonicalizeName(ref))
}

func (s *Server) handleAttachRepoTag(w http.ResponseWriter, r *http.Request) {
	var req attachTagRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	repo, ns, ok := s.repoFromRequest(w, r, store.ScopeRepoWrite)
	if !ok {
		return
	}

	tag, err := s.resolveTagRef(ns.ID, req.TagID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if tag == nil {
		JSONError(w, KindNotFound, "tag not found")
		return
	}
	if tag.NamespaceID != ns.ID {
		JSONError(w, KindUnprocessableEntity, "tag must belong to the repo's namespace")
		return
	}

	if err := s.store.AddRepoTag(repo.ID, tag.ID); err != nil {
		s.internalError(w, r, err)
		return
	}

	tags, err := s.store.ListRepoTags(repo.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, tags)
}

func (s *Server) handleDetachRepoTag(w http.ResponseWriter, r *http.Request) {
	repo, ns, ok := s.repoFromRequest(w, r, store.ScopeRepoWrite)
	if !ok {
		return
	}

	tag, err := s.resolveTagRef(ns.ID, chi.URLParam(r, "tag"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if tag == nil {
		JSONError(w, KindNotFound, "tag not found")
		return
	}

	if err := s.store.RemoveRepoTag(repo.ID, tag.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "tag not attached")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"detached": tag.ID})
}

type repoGrantRequest struct {
	UserID string   `json:"user_id"`
	Allow  []string `json:"allow"`
}

type repoGrantResponse struct {
	UserID    string    `json:"user_id"`
	RepoID    string    `json:"repo_id"`
	Allow     []string  `json:"allow"`
	GrantedAt time.Time `json:"granted_at"`
}

func (s *Server) handleListRepoGrants(w http.ResponseWriter, r *http.Request) {
	repo, _, ok := s.repoFromRequest(w, r, store.ScopeRepoAdmin)
	if !ok {
		return
	}

	grants, err := s.store.ListRepoGrants(repo.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	out := []repoGrantResponse{}
	for _, g := range grants {
		out = append(out, repoGrantResponse{
			UserID:    g.UserID,
			RepoID:    g.RepoID,
			Allow:     g.Scopes.Strings(),
			GrantedAt: g.GrantedAt,
		})
	}
	JSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertRepoGrant(w http.ResponseWriter, r *http.Request) {
	var req repoGrantRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	repo, _, ok := s.repoFromRequest(w, r, store.ScopeRepoAdmin)
	if !ok {
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

	user, err := s.store.GetUser(req.UserID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if user == nil {
		JSONError(w, KindNotFound, "user not found")
		return
	}

	grant := &store.RepoGrant{
		UserID:    user.ID,
		RepoID:    repo.ID,
		Scopes:    scopes,
		GrantedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertRepoGrant(grant); err != nil {
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, repoGrantResponse{
		UserID:    grant.UserID,
		RepoID:    grant.RepoID,
		Allow:     grant.Scopes.Strings(),
		GrantedAt: grant.GrantedAt,
	})
}

func (s *Server) handleDeleteRepoGrant(w http.ResponseWriter, r *http.Request) {
	repo, _, ok := s.repoFromRequest(w, r, store.ScopeRepoAdmin)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "user")
	if err := s.store.DeleteRepoGrant(userID, repo.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "grant not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"revoked": userID})
}
