package server

import (
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/cutmanhq/cutman/internal/store"
)

type blameLineResponse struct {
	Line   int       `json:"line"`
	SHA    string    `json:"sha"`
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
	Text   string    `json:"text"`
}

func (s *Server) handleRepoBlame(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}

	path := strings.Trim(r.URL.Query().Get("path"), "/")
	if path == "" {
		JSONError(w, KindBadRequest, "path parameter required")
		return
	}

	rev := chi.URLParam(r, "rev")
	hash, err := resolveRevision(gitRepo, rev)
	if err != nil {
		s.writeRevisionError(w, r, err, rev)
		return
	}
	commit, err := gitRepo.CommitObject(hash)
	if err != nil {
		JSONError(w, KindNotFound, fmt.Sprintf("revision not found: %s", rev))
		return
	}

	blame, err := git.Blame(commit, path)
	if err != nil {
		JSONError(w, KindNotFound, fmt.Sprintf("path not found: %s", path))
		return
	}

	lines := []blameLineResponse{}
	for i, line := range blame.Lines {
		lines = append(lines, blameLineResponse{
			Line:   i + 1,
			SHA:    line.Hash.String(),
			Author: line.Author,
			Date:   line.Date,
			Text:   line.Text,
		})
	}

	JSON(w, http.StatusOK, lines)
}

type compareResponse struct {
	BaseSHA string             `json:"base_sha"`
	HeadSHA string             `json:"head_sha"`
	Commits []commitResponse   `json:"commits"`
	Stats   []fileStatResponse `json:"stats"`
	Patch   string             `json:"patch"`
}

// handleRepoCompare diffs base...head. The range arrives as one path
// segment "base...head".
func (s *Server) handleRepoCompare(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}

	rangeParam := chi.URLParam(r, "range")
	parts := strings.SplitN(rangeParam, "...", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		JSONError(w, KindBadRequest, "compare range must be base...head")
		return
	}

	baseHash, err := resolveRevision(gitRepo, parts[0])
	if err != nil {
		s.writeRevisionError(w, r, err, parts[0])
		return
	}
	headHash, err := resolveRevision(gitRepo, parts[1])
	if err != nil {
		s.writeRevisionError(w, r, err, parts[1])
		return
	}

	baseCommit, err := gitRepo.CommitObject(baseHash)
	if err != nil {
		JSONError(w, KindNotFound, fmt.Sprintf("revision not found: %s", parts[0]))
		return
	}
	headCommit, err := gitRepo.CommitObject(headHash)
	if err != nil {
		JSONError(w, KindNotFound, fmt.Sprintf("revision not found: %s", parts[1]))
		return
	}

	patch, err := baseCommit.PatchContext(r.Context(), headCommit)
	if err != nil {
		s.internalError(w, r, fmt.Errorf("compute patch: %w", err))
		return
	}

	commits, err := commitsBetween(gitRepo, baseHash, headHash)
	if err != nil {
		s.internalError(w, r, fmt.Errorf("walk compare range: %w", err))
		return
	}

	resp := compareResponse{
		BaseSHA: baseHash.String(),
		HeadSHA: headHash.String(),
		Commits: commits,
		Stats:   []fileStatResponse{},
		Patch:   patch.String(),
	}
	for _, stat := range patch.Stats() {
		resp.Stats = append(resp.Stats, fileStatResponse{
			Path:      stat.Name,
			Additions: stat.Addition,
			Deletions: stat.Deletion,
		})
	}

	JSON(w, http.StatusOK, resp)
}

// commitsBetween lists commits reachable from head but not from base,
// newest first.
func commitsBetween(gitRepo *git.Repository, base, head plumbing.Hash) ([]commitResponse, error) {
	reachable := map[plumbing.Hash]struct{}{}
	baseIter, err := gitRepo.Log(&git.LogOptions{From: base})
	if err != nil {
		return nil, err
	}
	defer baseIter.Close()
	err = baseIter.ForEach(func(c *object.Commit) error {
		reachable[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	headIter, err := gitRepo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, err
	}
	defer headIter.Close()

	commits := []commitResponse{}
	err = headIter.ForEach(func(c *object.Commit) error {
		if _, ok := reachable[c.Hash]; ok {
			return nil
		}
		commits = append(commits, commitToResponse(c))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// handleRepoArchive streams a git archive of the revision. go-git has
// no archive writer, so this execs the git binary against the bare
// directory.
func (s *Server) handleRepoArchive(w http.ResponseWriter, r *http.Request) {
	repo, _, ok := s.repoFromRequest(w, r, store.ScopeRepoRead)
	if !ok {
		return
	}
	gitRepo, err := s.openGitRepo(repo)
	if err != nil {
		JSONError(w, KindNotFound, "repository not initialized")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "tar"
	}
	var contentType, ext string
	switch format {
	case "tar":
		contentType, ext = "application/x-tar", "tar"
	case "zip":
		contentType, ext = "application/zip", "zip"
	default:
		JSONError(w, KindBadRequest, "format must be tar or zip")
		return
	}

	rev := chi.URLParam(r, "rev")
	hash, err := resolveRevision(gitRepo, rev)
	if err != nil {
		s.writeRevisionError(w, r, err, rev)
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", repo.Name, hash.String()[:12], ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cmd := exec.CommandContext(r.Context(), "git", "archive", "--format="+format, hash.String())
	cmd.Dir = s.repos.Path(repo.NamespaceID, repo.ID)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if err := cmd.Start(); err != nil {
		s.internalError(w, r, fmt.Errorf("start git archive: %w", err))
		return
	}

	io.Copy(w, stdout)
	if err := cmd.Wait(); err != nil {
		s.log.WithField("repo_id", repo.ID).WithError(err).Debug("git archive exited")
	}
}
