package server

import (
	"errors"

	"github.com/cutmanhq/cutman/internal/store"
)

var errUnauthenticated = errors.New("unauthenticated")

// effectiveNamespaceScopes collects the caller's scopes on a
// namespace: everything for admin and the owner, otherwise the
// namespace grant mask.
func (s *Server) effectiveNamespaceScopes(p *Principal, ns *store.Namespace) (store.Scope, error) {
	if p.IsAdmin() {
		return store.ScopeAll, nil
	}
	if p.User == nil {
		return 0, nil
	}
	if ns.OwnerUserID != nil && *ns.OwnerUserID == p.User.ID {
		return store.ScopeAll, nil
	}

	grant, err := s.store.GetNamespaceGrant(p.User.ID, ns.ID)
	if err != nil {
		return 0, err
	}
	if grant == nil {
		return 0, nil
	}
	return grant.Scopes, nil
}

// effectiveRepoScopes unions the namespace-level scopes with the
// caller's direct repo grant.
func (s *Server) effectiveRepoScopes(p *Principal, ns *store.Namespace, repo *store.Repo) (store.Scope, error) {
	scopes, err := s.effectiveNamespaceScopes(p, ns)
	if err != nil {
		return 0, err
	}
	if scopes == store.ScopeAll || p.User == nil {
		return scopes, nil
	}

	grant, err := s.store.GetRepoGrant(p.User.ID, repo.ID)
	if err != nil {
		return 0, err
	}
	if grant != nil {
		scopes |= grant.Scopes
	}
	return scopes, nil
}

// authorizeNamespace is the single permission decision for
// namespace-targeted operations: allow iff required is a subset of the
// caller's effective scopes.
func (s *Server) authorizeNamespace(p *Principal, ns *store.Namespace, required store.Scope) (bool, error) {
	scopes, err := s.effectiveNamespaceScopes(p, ns)
	if err != nil {
		return false, err
	}
	return scopes.Has(required), nil
}

// authorizeRepo is the permission decision for repo-targeted
// operations.
func (s *Server) authorizeRepo(p *Principal, ns *store.Namespace, repo *store.Repo, required store.Scope) (bool, error) {
	scopes, err := s.effectiveRepoScopes(p, ns, repo)
	if err != nil {
		return false, err
	}
	return scopes.Has(required), nil
}
