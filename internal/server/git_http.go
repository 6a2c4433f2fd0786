package server

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os/exec"

	"github.com/go-chi/chi/v5"

	"github.com/cutmanhq/cutman/internal/store"
)

// gitRepoFromRequest resolves the /git mount's {namespace}/{repo} pair
// and authorizes the caller. Unknown repos are NotFound; pushing to a
// repo that was never created through the API does not create it.
func (s *Server) gitRepoFromRequest(w http.ResponseWriter, r *http.Request, required store.Scope) (*store.Repo, *store.Namespace, bool) {
	repo, ns, err := s.resolveRepoInNamespace(chi.URLParam(r, "namespace"), chi.URLParam(r, "repo"))
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

// handleInfoRefs serves the smart-protocol ref advertisement for both
// services. The body is the pkt-line service banner, a flush-pkt, then
// the advertisement from the git binary.
func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	var required store.Scope
	switch service {
	case "git-upload-pack":
		required = store.ScopeRepoRead
	case "git-receive-pack":
		required = store.ScopeRepoWrite
	default:
		JSONError(w, KindBadRequest, "unsupported service")
		return
	}

	repo, ns, ok := s.gitRepoFromRequest(w, r, required)
	if !ok {
		return
	}

	cmd := exec.CommandContext(r.Context(), service, "--stateless-rpc", "--advertise-refs", s.repos.Path(ns.ID, repo.ID))
	output, err := cmd.Output()
	if err != nil {
		s.internalError(w, r, fmt.Errorf("advertise refs: %w", err))
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", service))
	w.Header().Set("Cache-Control", "no-cache")

	banner := fmt.Sprintf("# service=%s\n", service)
	fmt.Fprintf(w, "%04x%s", len(banner)+4, banner)
	w.Write([]byte("0000"))
	w.Write(output)
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	repo, ns, ok := s.gitRepoFromRequest(w, r, store.ScopeRepoRead)
	if !ok {
		return
	}

	body := gitRequestBody(r)
	if closer, ok := body.(io.Closer); ok && body != r.Body {
		defer closer.Close()
	}

	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	w.Header().Set("Cache-Control", "no-cache")

	cmd := exec.CommandContext(r.Context(), "git-upload-pack", "--stateless-rpc", s.repos.Path(ns.ID, repo.ID))
	cmd.Stdin = body
	cmd.Stdout = w

	if err := cmd.Run(); err != nil {
		// Client disconnects surface here and are not worth more than a
		// debug line.
		s.log.WithField("repo_id", repo.ID).WithError(err).Debug("git-upload-pack exited")
	}
}

func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request) {
	repo, ns, ok := s.gitRepoFromRequest(w, r, store.ScopeRepoWrite)
	if !ok {
		return
	}

	unlock := s.repos.LockRepo(repo.ID)
	defer unlock()

	body := gitRequestBody(r)
	if closer, ok := body.(io.Closer); ok && body != r.Body {
		defer closer.Close()
	}

	w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
	w.Header().Set("Cache-Control", "no-cache")

	cmd := exec.CommandContext(r.Context(), "git-receive-pack", "--stateless-rpc", s.repos.Path(ns.ID, repo.ID))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if err := cmd.Start(); err != nil {
		s.internalError(w, r, fmt.Errorf("start git-receive-pack: %w", err))
		return
	}

	go func() {
		io.Copy(stdin, body)
		stdin.Close()
	}()

	io.Copy(w, stdout)

	if err := cmd.Wait(); err != nil {
		// Non-zero exit covers rejected pushes; the pkt-line stream
		// already told the client.
		s.log.WithField("repo_id", repo.ID).WithError(err).Debug("git-receive-pack exited")
		return
	}

	size, err := s.repos.Size(ns.ID, repo.ID)
	if err != nil {
		s.log.WithField("repo_id", repo.ID).WithError(err).Warn("size recompute failed")
		return
	}
	if err := s.store.RecordRepoPush(repo.ID, size); err != nil {
		s.log.WithField("repo_id", repo.ID).WithError(err).Warn("push bookkeeping failed")
	}
}

// gitRequestBody unwraps gzip-encoded request bodies; Git clients
// compress large pushes.
func gitRequestBody(r *http.Request) io.Reader {
	if r.Header.Get("Content-Encoding") != "gzip" {
		return r.Body
	}
	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		return r.Body
	}
	return gz
}
