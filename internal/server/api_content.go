package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/cutmanhq/cutman/internal/store"
)

type refResponse struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	CommitSHA string `json:"commit_sha"`
	IsDefault bool   `json:"is_default"`
}

type gitSignature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

type commitResponse struct {
	SHA        string       `json:"sha"`
	Message    string       `json:"message"`
	Author     gitSignature `json:"author"`
	Committer  gitSignature `json:"committer"`
	ParentSHAs []string     `json:"parent_shas"`
	TreeSHA    string       `json:"tree_sha"`
}

type fileStatResponse struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type commitDetailResponse struct {
	commitResponse
	Stats []fileStatResponse `json:"stats"`
}

type treeEntryResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Mode string `json:"mode"`
	SHA  string `json:"sha"`
	Size *int64 `json:"size,omitempty"`
}

type blobResponse struct {
	Path      string  `json:"path"`
	SHA       string  `json:"sha"`
	Size      int64   `json:"size"`
	Content   *string `json:"content,omitempty"`
	Encoding  string  `json:"encoding"`
	IsBinary  bool    `json:"is_binary"`
	Truncated bool    `json:"truncated"`
}

const maxBlobBytes = 1024 * 1024

var (
	errRevisionNotFound  = errors.New("revision not found")
	errAmbiguousRevision = errors.New("ambiguous short revision")
	errEmptyRepository   = errors.New("repository is empty")

	fullSHAPattern  = regexp.MustCompile(`^[0-9a-f]{40}$`)
	shortSHAPattern = regexp.MustCompile(`^[0-9a-f]{4,39}$`)
)

// openGitRepo opens the bare repository backing a repo row.
func (s *Server) openGitRepo(repo *store.Repo) (*git.Repository, error) {
	return git.PlainOpen(s.repos.Path(repo.NamespaceID, repo.ID))
}

// resolveRevision turns a revision string into a commit hash. Order:
// full SHA, short SHA (unique prefix), branch, tag, HEAD. Annotated
// tags are peeled to their target commit.
func resolveRevision(gitRepo *git.Repository, rev string) (plumbing.Hash, error) {
	if rev == "" {
		rev = "HEAD"
	}

	if fullSHAPattern.MatchString(rev) {
		hash := plumbing.NewHash(rev)
		if _, err := gitRepo.CommitObject(hash); err == nil {
			return hash, nil
		}
	}

	if shortSHAPattern.MatchString(rev) {
		hash, err := resolveShortSHA(gitRepo, rev)
		if err == nil {
			return hash, nil
		}
		if errors.Is(err, errAmbiguousRevision) {
			return plumbing.ZeroHash, err
		}
	}

	if ref, err := gitRepo.Reference(plumbing.NewBranchReferenceName(rev), true); err == nil {
		return ref.Hash(), nil
	}

	if ref, err := gitRepo.Reference(plumbing.NewTagReferenceName(rev), true); err == nil {
		if tag, err := gitRepo.TagObject(ref.Hash()); err == nil {
			return tag.Target, nil
		}
		return ref.Hash(), nil
	}

	if rev == "HEAD" {
		ref, err := gitRepo.Head()
		if err != nil {
			return plumbing.ZeroHash, errEmptyRepository
		}
		return ref.Hash(), nil
	}

	return plumbing.ZeroHash, errRevisionNotFound
}

// resolveShortSHA scans commits for a unique hash prefix.
func resolveShortSHA(gitRepo *git.Repository, prefix string) (plumbing.Hash, error) {
	iter, err := gitRepo.CommitObjects()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer iter.Close()

	var found plumbing.Hash
	matches := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if strings.HasPrefix(c.Hash.String(), prefix) {
			found = c.Hash
			matches++
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}

	switch matches {
	case 0:
		return plumbing.ZeroHash, errRevisionNotFound
	case 1:
		return found, nil
	default:
		return plumbing.ZeroHash, errAmbiguousRevision
	}
}

func (s *Server) writeRevisionError(w http.ResponseWriter, r *http.Request, err error, rev string) {
	switch {
	case errors.Is(err, errAmbiguousRevision):
		JSONError(w, KindAmbiguousRevision, fmt.Sprintf("short revision %q matches multiple commits", rev))
	case errors.Is(err, errEmptyRepository):
		JSONError(w, KindNotFound, "repository is empty")
	case errors.Is(err, errRevisionNotFound):
		JSONError(w, KindNotFound, fmt.Sprintf("revision not found: %s", rev))
	default:
		s.internalError(w, r, err)
	}
}

// contentRepo resolves and authorizes the repo, then opens its git
// directory.
func (s *Server) contentRepo(w http.ResponseWriter, r *http.Request) (*git.Repository, *store.Repo, bool) {
	repo, _, ok := s.repoFromRequest(w, r, store.ScopeRepoRead)
	if !ok {
		return nil, nil, false
	}
	gitRepo, err := s.openGitRepo(repo)
	if err != nil {
		JSONError(w, KindNotFound, "repository not initialized")
		return nil, nil, false
	}
	return gitRepo, repo, true
}

func (s *Server) handleRepoRefs(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}

	var defaultBranch string
	if headRef, err := gitRepo.Head(); err == nil {
		defaultBranch = headRef.Name().Short()
	}

	refs := []refResponse{}
	if branches, err := gitRepo.Branches(); err == nil {
		branches.ForEach(func(ref *plumbing.Reference) error {
			refs = append(refs, refResponse{
				Name:      ref.Name().Short(),
				Type:      "branch",
				CommitSHA: ref.Hash().String(),
				IsDefault: ref.Name().Short() == defaultBranch,
			})
			return nil
		})
	}
	if tags, err := gitRepo.Tags(); err == nil {
		tags.ForEach(func(ref *plumbing.Reference) error {
			sha := ref.Hash().String()
			if tag, err := gitRepo.TagObject(ref.Hash()); err == nil {
				sha = tag.Target.String()
			}
			refs = append(refs, refResponse{
				Name:      ref.Name().Short(),
				Type:      "tag",
				CommitSHA: sha,
			})
			return nil
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].IsDefault != refs[j].IsDefault {
			return refs[i].IsDefault
		}
		if refs[i].Type != refs[j].Type {
			return refs[i].Type == "branch"
		}
		return refs[i].Name < refs[j].Name
	})

	JSON(w, http.StatusOK, refs)
}

func commitToResponse(c *object.Commit) commitResponse {
	var parents []string
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return commitResponse{
		SHA:     c.Hash.String(),
		Message: c.Message,
		Author: gitSignature{
			Name:  c.Author.Name,
			Email: c.Author.Email,
			Date:  c.Author.When,
		},
		Committer: gitSignature{
			Name:  c.Committer.Name,
			Email: c.Committer.Email,
			Date:  c.Committer.When,
		},
		ParentSHAs: parents,
		TreeSHA:    c.TreeHash.String(),
	}
}

func (s *Server) handleRepoCommits(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}

	rev := r.URL.Query().Get("rev")
	hash, err := resolveRevision(gitRepo, rev)
	if err != nil {
		s.writeRevisionError(w, r, err, rev)
		return
	}

	page, perPage := parsePage(r)
	offset := (page - 1) * perPage

	iter, err := gitRepo.Log(&git.LogOptions{From: hash})
	if err != nil {
		s.internalError(w, r, fmt.Errorf("walk history: %w", err))
		return
	}
	defer iter.Close()

	commits := []commitResponse{}
	total := 0
	for {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.internalError(w, r, fmt.Errorf("walk history: %w", err))
			return
		}
		if total >= offset && total < offset+perPage {
			commits = append(commits, commitToResponse(commit))
		}
		total++
	}

	JSONPage(w, commits, page, perPage, total)
}

func (s *Server) handleRepoCommit(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
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

	detail := commitDetailResponse{
		commitResponse: commitToResponse(commit),
		Stats:          []fileStatResponse{},
	}
	if stats, err := commit.Stats(); err == nil {
		for _, stat := range stats {
			detail.Stats = append(detail.Stats, fileStatResponse{
				Path:      stat.Name,
				Additions: stat.Addition,
				Deletions: stat.Deletion,
			})
		}
	}

	JSON(w, http.StatusOK, detail)
}

// commitTree resolves {rev} and returns the commit's root tree.
func (s *Server) commitTree(w http.ResponseWriter, r *http.Request, gitRepo *git.Repository) (*object.Tree, bool) {
	rev := chi.URLParam(r, "rev")
	hash, err := resolveRevision(gitRepo, rev)
	if err != nil {
		s.writeRevisionError(w, r, err, rev)
		return nil, false
	}

	commit, err := gitRepo.CommitObject(hash)
	if err != nil {
		JSONError(w, KindNotFound, fmt.Sprintf("revision not found: %s", rev))
		return nil, false
	}
	tree, err := commit.Tree()
	if err != nil {
		s.internalError(w, r, fmt.Errorf("read tree: %w", err))
		return nil, false
	}
	return tree, true
}

func (s *Server) handleRepoTree(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}
	tree, ok := s.commitTree(w, r, gitRepo)
	if !ok {
		return
	}

	path := strings.Trim(r.URL.Query().Get("path"), "/")
	if path != "" {
		entry, err := tree.FindEntry(path)
		if err != nil {
			JSONError(w, KindNotFound, fmt.Sprintf("path not found: %s", path))
			return
		}
		if entry.Mode.IsFile() {
			JSONError(w, KindBadRequest, "path is a file, not a directory")
			return
		}
		subTree, err := tree.Tree(path)
		if err != nil {
			JSONError(w, KindNotFound, fmt.Sprintf("path not found: %s", path))
			return
		}
		tree = subTree
	}

	entries := []treeEntryResponse{}
	for _, entry := range tree.Entries {
		entryPath := entry.Name
		if path != "" {
			entryPath = path + "/" + entry.Name
		}

		resp := treeEntryResponse{
			Name: entry.Name,
			Path: entryPath,
			Mode: fmt.Sprintf("%06o", entry.Mode),
			SHA:  entry.Hash.String(),
		}
		switch {
		case entry.Mode.IsFile():
			resp.Type = "file"
			if blob, err := gitRepo.BlobObject(entry.Hash); err == nil {
				size := blob.Size
				resp.Size = &size
			}
		case entry.Mode == 0o040000:
			resp.Type = "dir"
		case entry.Mode == 0o120000:
			resp.Type = "symlink"
		case entry.Mode == 0o160000:
			resp.Type = "submodule"
		default:
			resp.Type = "file"
		}
		entries = append(entries, resp)
	}

	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Type == "dir") != (entries[j].Type == "dir") {
			return entries[i].Type == "dir"
		}
		return entries[i].Name < entries[j].Name
	})

	JSON(w, http.StatusOK, entries)
}

func (s *Server) handleRepoBlob(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}

	path := strings.Trim(r.URL.Query().Get("path"), "/")
	if path == "" {
		JSONError(w, KindBadRequest, "path parameter required")
		return
	}

	tree, ok := s.commitTree(w, r, gitRepo)
	if !ok {
		return
	}

	file, err := tree.File(path)
	if err != nil {
		if _, treeErr := tree.Tree(path); treeErr == nil {
			JSONError(w, KindBadRequest, "path is a directory, not a file")
			return
		}
		JSONError(w, KindNotFound, fmt.Sprintf("path not found: %s", path))
		return
	}

	if r.URL.Query().Get("raw") == "true" {
		s.serveRawBlob(w, r, &file.Blob, path)
		return
	}

	resp, err := blobToResponse(&file.Blob, path)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

func blobToResponse(blob *object.Blob, path string) (*blobResponse, error) {
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	defer reader.Close()

	size := blob.Size
	readSize := size
	truncated := false
	if readSize > maxBlobBytes {
		readSize = maxBlobBytes
		truncated = true
	}

	content := make([]byte, readSize)
	n, err := io.ReadFull(reader, content)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	content = content[:n]

	resp := &blobResponse{
		Path:      path,
		SHA:       blob.Hash.String(),
		Size:      size,
		IsBinary:  isBinaryContent(content),
		Truncated: truncated,
	}
	if resp.IsBinary {
		encoded := base64.StdEncoding.EncodeToString(content)
		resp.Content = &encoded
		resp.Encoding = "base64"
	} else {
		str := string(content)
		resp.Content = &str
		resp.Encoding = "utf-8"
	}
	return resp, nil
}

func (s *Server) serveRawBlob(w http.ResponseWriter, r *http.Request, blob *object.Blob, path string) {
	reader, err := blob.Reader()
	if err != nil {
		s.internalError(w, r, fmt.Errorf("read blob: %w", err))
		return
	}
	contentType := detectContentType(path, reader)
	reader.Close()

	reader, err = blob.Reader()
	if err != nil {
		s.internalError(w, r, fmt.Errorf("read blob: %w", err))
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(path)))
	io.Copy(w, reader)
}

// readmeCandidates is the preference order for the repo landing file.
var readmeCandidates = []string{"README.md", "README.markdown", "README.rst", "README.txt", "README"}

func (s *Server) handleRepoReadme(w http.ResponseWriter, r *http.Request) {
	gitRepo, _, ok := s.contentRepo(w, r)
	if !ok {
		return
	}
	tree, ok := s.commitTree(w, r, gitRepo)
	if !ok {
		return
	}

	byName := make(map[string]string, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.Mode.IsFile() {
			byName[strings.ToUpper(entry.Name)] = entry.Name
		}
	}

	for _, candidate := range readmeCandidates {
		name, found := byName[strings.ToUpper(candidate)]
		if !found {
			continue
		}
		file, err := tree.File(name)
		if err != nil {
			continue
		}
		resp, err := blobToResponse(&file.Blob, name)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		JSON(w, http.StatusOK, resp)
		return
	}

	JSONError(w, KindNotFound, "no readme found")
}

func isBinaryContent(content []byte) bool {
	if !utf8.Valid(content) {
		return true
	}
	for _, b := range content {
		if b == 0 {
			return true
		}
	}
	return false
}

var mimeTypesByExt = map[string]string{
	".go":   "text/plain; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".py":   "text/x-python; charset=utf-8",
	".rs":   "text/x-rust; charset=utf-8",
	".c":    "text/x-c; charset=utf-8",
	".h":    "text/x-c; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".json": "application/json",
	".yaml": "text/yaml; charset=utf-8",
	".yml":  "text/yaml; charset=utf-8",
	".xml":  "application/xml",
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".sh":   "text/x-shellscript; charset=utf-8",
	".sql":  "text/x-sql; charset=utf-8",
}

func detectContentType(filename string, reader io.Reader) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := mimeTypesByExt[ext]; ok {
		return mime
	}

	buf := make([]byte, 512)
	n, _ := reader.Read(buf)
	if n > 0 {
		return http.DetectContentType(buf[:n])
	}
	return "application/octet-stream"
}
