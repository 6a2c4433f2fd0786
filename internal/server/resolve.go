package server

import (
	"net/url"
	"strings"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

// resolveNamespace accepts an opaque id or a namespace name. Name
// matching is case-insensitive. Returns (nil, nil) when nothing
// matches.
func (s *Server) resolveNamespace(ref string) (*store.Namespace, error) {
	ns, err := s.store.GetNamespaceByName(core.CanonicalizeName(ref))
	if err != nil {
		return nil, err
	}
	if ns != nil {
		return ns, nil
	}
	return s.store.GetNamespace(ref)
}

// resolveRepo accepts an opaque repo id or a "{namespace}/{name}" pair
// (the slash percent-encoded in URLs). A trailing ".git" is ignored so
// Git clients can use either form of the clone URL.
func (s *Server) resolveRepo(ref string) (*store.Repo, *store.Namespace, error) {
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	ref = strings.TrimSuffix(ref, ".git")

	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ns, err := s.resolveNamespace(ref[:i])
		if err != nil || ns == nil {
			return nil, nil, err
		}
		repo, err := s.store.GetRepoByName(ns.ID, core.CanonicalizeName(ref[i+1:]))
		if err != nil || repo == nil {
			return nil, nil, err
		}
		return repo, ns, nil
	}

	repo, err := s.store.GetRepoByID(ref)
	if err != nil || repo == nil {
		return nil, nil, err
	}
	ns, err := s.store.GetNamespace(repo.NamespaceID)
	if err != nil {
		return nil, nil, err
	}
	return repo, ns, nil
}

// resolveRepoInNamespace is the two-segment form used by the Git and
// LFS mounts, where namespace and repo arrive as separate path params.
func (s *Server) resolveRepoInNamespace(nsRef, repoRef string) (*store.Repo, *store.Namespace, error) {
	ns, err := s.resolveNamespace(nsRef)
	if err != nil || ns == nil {
		return nil, nil, err
	}
	name := core.CanonicalizeName(strings.TrimSuffix(repoRef, ".git"))
	repo, err := s.store.GetRepoByName(ns.ID, name)
	if err != nil || repo == nil {
		return nil, nil, err
	}
	return repo, ns, nil
}

// resolveFolder accepts an opaque folder id or a slash path rooted at
// the namespace. Path lookup canonicalizes segments before walking.
func (s *Server) resolveFolder(namespaceID, ref string) (*store.Folder, error) {
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}

	if !strings.ContainsRune(ref, '/') {
		folder, err := s.store.GetFolderByID(ref)
		if err != nil {
			return nil, err
		}
		if folder != nil && folder.NamespaceID == namespaceID {
			return folder, nil
		}
	}

	segments, err := core.CanonicalFolderPath(ref)
	if err != nil {
		return nil, nil
	}

	var parentID *string
	var folder *store.Folder
	for _, name := range segments {
		folder, err = s.store.GetFolderChild(namespaceID, parentID, name)
		if err != nil || folder == nil {
			return nil, err
		}
		parentID = &folder.ID
	}
	return folder, nil
}

// folderAncestryContains walks up from startID looking for targetID.
// Used to reject re-parenting a folder under its own subtree. The walk
// is depth-bounded so a corrupted hierarchy cannot loop forever.
func (s *Server) folderAncestryContains(startID *string, targetID string) (bool, error) {
	current := startID
	for depth := 0; current != nil && depth <= core.MaxFolderDepth; depth++ {
		if *current == targetID {
			return true, nil
		}
		folder, err := s.store.GetFolderByID(*current)
		if err != nil {
			return false, err
		}
		if folder == nil {
			return false, nil
		}
		current = folder.ParentID
	}
	return false, nil
}

// folderDepth returns the depth of the folder identified by id, with
// root children at depth 1.
func (s *Server) folderDepth(id *string) (int, error) {
	depth := 0
	current := id
	for current != nil && depth <= core.MaxFolderDepth {
		folder, err := s.store.GetFolderByID(*current)
		if err != nil {
			return 0, err
		}
		if folder == nil {
			break
		}
		depth++
		current = folder.ParentID
	}
	return depth, nil
}
