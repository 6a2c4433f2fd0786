package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

// namespaceFromQuery resolves the ?namespace= parameter and authorizes
// the caller for the required scopes on it.
func (s *Server) namespaceFromQuery(w http.ResponseWriter, r *http.Request, required store.Scope) (*store.Namespace, bool) {
	nsRef := r.URL.Query().Get("namespace")
	if nsRef == "" {
		JSONError(w, KindBadRequest, "namespace parameter required")
		return nil, false
	}
	return s.authorizedNamespace(w, r, nsRef, required)
}

func (s *Server) authorizedNamespace(w http.ResponseWriter, r *http.Request, nsRef string, required store.Scope) (*store.Namespace, bool) {
	ns, err := s.resolveNamespace(nsRef)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	if ns == nil {
		JSONError(w, KindNotFound, "namespace not found")
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
	return ns, true
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	ns, ok := s.namespaceFromQuery(w, r, store.ScopeNamespaceRead)
	if !ok {
		return
	}

	page, perPage := parsePage(r)
	folders, err := s.store.ListFolders(ns.ID, perPage, (page-1)*perPage)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	total, err := s.store.CountFolders(ns.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	JSONPage(w, folders, page, perPage, total)
}

type createFolderRequest struct {
	Namespace string  `json:"namespace"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parent_id,omitempty"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	name := core.CanonicalizeName(req.Name)
	if err := core.ValidateSlug(name); err != nil {
		JSONError(w, KindBadRequest, "invalid folder name")
		return
	}

	ns, ok := s.authorizedNamespace(w, r, req.Namespace, store.ScopeNamespaceWrite)
	if !ok {
		return
	}

	if req.ParentID != nil {
		parent, err := s.store.GetFolderByID(*req.ParentID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if parent == nil {
			JSONError(w, KindNotFound, "parent folder not found")
			return
		}
		if parent.NamespaceID != ns.ID {
			JSONError(w, KindUnprocessableEntity, "parent folder must belong to the same namespace")
			return
		}
		depth, err := s.folderDepth(req.ParentID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if depth >= core.MaxFolderDepth {
			JSONError(w, KindUnprocessableEntity, "folder hierarchy too deep")
			return
		}
	}

	folder := &store.Folder{
		ID:          core.NewID(),
		NamespaceID: ns.ID,
		ParentID:    req.ParentID,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateFolder(folder); err != nil {
		if errors.Is(err, store.ErrConflict) {
			JSONError(w, KindConflict, "folder name already in use at this level")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, folder)
}

// folderFromRequest resolves the {id} path param, accepting an opaque
// id or a slash path when ?namespace= gives the root.
func (s *Server) folderFromRequest(w http.ResponseWriter, r *http.Request, required store.Scope) (*store.Folder, *store.Namespace, bool) {
	ref := chi.URLParam(r, "id")

	var folder *store.Folder
	var err error
	if nsRef := r.URL.Query().Get("namespace"); nsRef != "" {
		ns, errResolve := s.resolveNamespace(nsRef)
		if errResolve != nil {
			s.internalError(w, r, errResolve)
			return nil, nil, false
		}
		if ns == nil {
			JSONError(w, KindNotFound, "namespace not found")
			return nil, nil, false
		}
		folder, err = s.resolveFolder(ns.ID, ref)
	} else {
		folder, err = s.store.GetFolderByID(ref)
	}
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}
	if folder == nil {
		JSONError(w, KindNotFound, "folder not found")
		return nil, nil, false
	}

	ns, err := s.store.GetNamespace(folder.NamespaceID)
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}

	p := GetPrincipal(r.Context())
	allowed, err := s.authorizeNamespace(p, ns, required)
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}
	if !allowed {
		JSONError(w, KindForbidden, "insufficient scope")
		return nil, nil, false
	}
	return folder, ns, true
}

func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	folder, _, ok := s.folderFromRequest(w, r, store.ScopeNamespaceRead)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, folder)
}

type updateFolderRequest struct {
	Name *string `json:"name,omitempty"`
	// ParentID distinguishes absent from explicit null: null moves the
	// folder to the namespace root.
	ParentID json.RawMessage `json:"parent_id,omitempty"`
}

func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	var req updateFolderRequest
	if !decodeJSON(w, r, s.cfg.HTTP.MaxBodyBytes, &req) {
		return
	}

	folder, ns, ok := s.folderFromRequest(w, r, store.ScopeNamespaceWrite)
	if !ok {
		return
	}

	if req.Name != nil {
		name := core.CanonicalizeName(*req.Name)
		if err := core.ValidateSlug(name); err != nil {
			JSONError(w, KindBadRequest, "invalid folder name")
			return
		}
		folder.Name = name
	}

	if req.ParentID != nil {
		var newParent *string
		if string(req.ParentID) != "null" {
			var id string
			if err := json.Unmarshal(req.ParentID, &id); err != nil {
				JSONError(w, KindBadRequest, "malformed parent_id")
				return
			}
			newParent = &id
		}

		if newParent != nil {
			if *newParent == folder.ID {
				JSONError(w, KindUnprocessableEntity, "folder cannot be its own parent")
				return
			}
			parent, err := s.store.GetFolderByID(*newParent)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if parent == nil {
				JSONError(w, KindNotFound, "parent folder not found")
				return
			}
			if parent.NamespaceID != ns.ID {
				JSONError(w, KindUnprocessableEntity, "parent folder must belong to the same namespace")
				return
			}
			cycle, err := s.folderAncestryContains(newParent, folder.ID)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if cycle {
				JSONError(w, KindUnprocessableEntity, "move would create a folder cycle")
				return
			}
			depth, err := s.folderDepth(newParent)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if depth >= core.MaxFolderDepth {
				JSONError(w, KindUnprocessableEntity, "folder hierarchy too deep")
				return
			}
		}
		folder.ParentID = newParent
	}

	if err := s.store.UpdateFolder(folder); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			JSONError(w, KindConflict, "folder name already in use at this level")
		case errors.Is(err, store.ErrNotFound):
			JSONError(w, KindNotFound, "folder not found")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	JSON(w, http.StatusOK, folder)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	folder, _, ok := s.folderFromRequest(w, r, store.ScopeNamespaceWrite)
	if !ok {
		return
	}

	if err := s.store.DeleteFolder(folder.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			JSONError(w, KindNotFound, "folder not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"deleted": folder.ID})
}
