package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/lfs"
	"github.com/cutmanhq/cutman/internal/store"
)

const lfsMediaType = "application/vnd.git-lfs+json"

func (s *Server) lfsJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", lfsMediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) lfsError(w http.ResponseWriter, status int, message string) {
	s.lfsJSON(w, status, lfs.LFSError{Message: message})
}

// lfsRepoFromRequest mirrors gitRepoFromRequest with LFS media-type
// errors.
func (s *Server) lfsRepoFromRequest(w http.ResponseWriter, r *http.Request, required store.Scope) (*store.Repo, *store.Namespace, bool) {
	repo, ns, err := s.resolveRepoInNamespace(chi.URLParam(r, "namespace"), chi.URLParam(r, "repo"))
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}
	if repo == nil {
		s.lfsError(w, http.StatusNotFound, "repository not found")
		return nil, nil, false
	}

	p := GetPrincipal(r.Context())
	allowed, err := s.authorizeRepo(p, ns, repo, required)
	if err != nil {
		s.internalError(w, r, err)
		return nil, nil, false
	}
	if !allowed {
		s.lfsError(w, http.StatusForbidden, "insufficient scope")
		return nil, nil, false
	}
	return repo, ns, true
}

// lfsObjectURL builds a same-process transfer URL for the batch
// response.
func (s *Server) lfsObjectURL(r *http.Request, ns *store.Namespace, repo *store.Repo, oid string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/git-lfs/%s/%s/objects/%s", scheme, r.Host, ns.Name, repo.Name, oid)
}

func (s *Server) handleLFSBatch(w http.ResponseWriter, r *http.Request) {
	var req lfs.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.lfsError(w, http.StatusBadRequest, "invalid batch request body")
		return
	}

	var required store.Scope
	switch req.Operation {
	case "download":
		required = store.ScopeRepoRead
	case "upload":
		required = store.ScopeRepoWrite
	default:
		s.lfsError(w, http.StatusBadRequest, "operation must be download or upload")
		return
	}

	repo, ns, ok := s.lfsRepoFromRequest(w, r, required)
	if !ok {
		return
	}

	resp := lfs.BatchResponse{
		Transfer: "basic",
		Objects:  make([]lfs.ObjectResponse, 0, len(req.Objects)),
	}
	for _, obj := range req.Objects {
		resp.Objects = append(resp.Objects, s.lfsBatchObject(r, ns, repo, obj, req.Operation))
	}

	s.lfsJSON(w, http.StatusOK, resp)
}

func (s *Server) lfsBatchObject(r *http.Request, ns *store.Namespace, repo *store.Repo, obj lfs.ObjectSpec, operation string) lfs.ObjectResponse {
	if err := lfs.ValidateOID(obj.OID); err != nil {
		return lfsObjectError(obj, http.StatusUnprocessableEntity, "invalid OID format")
	}
	if s.cfg.LFS.MaxObjectBytes > 0 && obj.Size > s.cfg.LFS.MaxObjectBytes {
		return lfsObjectError(obj, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("object exceeds maximum size of %d bytes", s.cfg.LFS.MaxObjectBytes))
	}

	exists, err := s.lfsStorage.Exists(r.Context(), ns.ID, obj.OID)
	if err != nil {
		return lfsObjectError(obj, http.StatusInternalServerError, "failed to check object existence")
	}

	url := s.lfsObjectURL(r, ns, repo, obj.OID)

	if operation == "download" {
		if !exists {
			return lfsObjectError(obj, http.StatusNotFound, "object not found")
		}
		return lfs.ObjectResponse{
			OID:  obj.OID,
			Size: obj.Size,
			Actions: map[string]lfs.Action{
				"download": {Href: url, ExpiresIn: 3600},
			},
		}
	}

	resp := lfs.ObjectResponse{OID: obj.OID, Size: obj.Size}
	if exists {
		// Already stored; no actions means the client skips the upload.
		return resp
	}
	resp.Actions = map[string]lfs.Action{
		"upload": {Href: url, ExpiresIn: 3600},
		"verify": {Href: url + "/verify", ExpiresIn: 3600},
	}
	return resp
}

func lfsObjectError(obj lfs.ObjectSpec, code int, message string) lfs.ObjectResponse {
	return lfs.ObjectResponse{
		OID:   obj.OID,
		Size:  obj.Size,
		Error: &lfs.ObjectError{Code: code, Message: message},
	}
}

func (s *Server) handleLFSUpload(w http.ResponseWriter, r *http.Request) {
	_, ns, ok := s.lfsRepoFromRequest(w, r, store.ScopeRepoWrite)
	if !ok {
		return
	}

	oid := chi.URLParam(r, "oid")
	if err := lfs.ValidateOID(oid); err != nil {
		s.lfsError(w, http.StatusUnprocessableEntity, "invalid OID format")
		return
	}

	size := r.ContentLength
	if size < 0 {
		s.lfsError(w, http.StatusBadRequest, "Content-Length required")
		return
	}
	if s.cfg.LFS.MaxObjectBytes > 0 && size > s.cfg.LFS.MaxObjectBytes {
		s.lfsError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("object exceeds maximum size of %d bytes", s.cfg.LFS.MaxObjectBytes))
		return
	}

	err := s.lfsStorage.Put(r.Context(), ns.ID, oid, r.Body, size)
	switch {
	case errors.Is(err, lfs.ErrHashMismatch):
		s.lfsError(w, http.StatusBadRequest, "content hash does not match OID")
		return
	case errors.Is(err, lfs.ErrSizeMismatch):
		s.lfsError(w, http.StatusBadRequest, "content size does not match Content-Length")
		return
	case err != nil:
		s.internalError(w, r, fmt.Errorf("store lfs object: %w", err))
		return
	}

	obj := &store.LFSObject{
		NamespaceID: ns.ID,
		OID:         oid,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.PutLFSObject(obj); err != nil {
		s.lfsStorage.Delete(r.Context(), ns.ID, oid)
		s.internalError(w, r, fmt.Errorf("record lfs object: %w", err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLFSDownload(w http.ResponseWriter, r *http.Request) {
	_, ns, ok := s.lfsRepoFromRequest(w, r, store.ScopeRepoRead)
	if !ok {
		return
	}

	oid := chi.URLParam(r, "oid")
	if err := lfs.ValidateOID(oid); err != nil {
		s.lfsError(w, http.StatusUnprocessableEntity, "invalid OID format")
		return
	}

	reader, size, err := s.lfsStorage.Get(r.Context(), ns.ID, oid)
	if errors.Is(err, lfs.ErrObjectNotFound) {
		s.lfsError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		s.internalError(w, r, fmt.Errorf("read lfs object: %w", err))
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}

func (s *Server) handleLFSVerify(w http.ResponseWriter, r *http.Request) {
	_, ns, ok := s.lfsRepoFromRequest(w, r, store.ScopeRepoWrite)
	if !ok {
		return
	}

	oid := chi.URLParam(r, "oid")
	if err := lfs.ValidateOID(oid); err != nil {
		s.lfsError(w, http.StatusUnprocessableEntity, "invalid OID format")
		return
	}

	var req lfs.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.lfsError(w, http.StatusBadRequest, "invalid verify request body")
		return
	}

	size, err := s.lfsStorage.Size(r.Context(), ns.ID, oid)
	if errors.Is(err, lfs.ErrObjectNotFound) {
		s.lfsError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		s.internalError(w, r, fmt.Errorf("verify lfs object: %w", err))
		return
	}
	if size != req.Size {
		s.lfsError(w, http.StatusBadRequest, fmt.Sprintf("size mismatch: expected %d, stored %d", req.Size, size))
		return
	}

	w.WriteHeader(http.StatusOK)
}
