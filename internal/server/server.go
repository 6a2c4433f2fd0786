// Package server implements the Cutman HTTP surface: the REST API,
// the Git smart-HTTP adapter, and the LFS batch endpoints.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/cutmanhq/cutman/internal/config"
	"github.com/cutmanhq/cutman/internal/lfs"
	"github.com/cutmanhq/cutman/internal/repostore"
	"github.com/cutmanhq/cutman/internal/store"
)

type Server struct {
	store      store.Store
	repos      *repostore.RepoStore
	lfsStorage lfs.Storage
	cfg        config.Config
	log        *logrus.Logger
}

func New(st store.Store, repos *repostore.RepoStore, lfsStorage lfs.Storage, cfg config.Config, log *logrus.Logger) *Server {
	return &Server{
		store:      st,
		repos:      repos,
		lfsStorage: lfsStorage,
		cfg:        cfg,
		log:        log,
	}
}

// Handler builds the route tree. /health is open; /api/v1 requires a
// bearer token (the admin subtree additionally requires the admin
// principal); the Git and LFS mounts accept Basic or Bearer.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.RequestLogger)
	r.Use(s.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, KindNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, KindBadRequest, "method not allowed")
	})

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/admin", func(ad chi.Router) {
			ad.Use(s.BearerAuthMiddleware)
			ad.Use(s.RequireAdmin)

			ad.Post("/users", s.handleAdminCreateUser)
			ad.Get("/users", s.handleAdminListUsers)
			ad.Delete("/users/{id}", s.handleAdminDeleteUser)
			ad.Post("/users/{id}/tokens", s.handleAdminCreateUserToken)
			ad.Post("/users/{id}/namespace-grants", s.handleAdminUpsertNamespaceGrant)
			ad.Delete("/users/{id}/namespace-grants/{namespace}", s.handleAdminDeleteNamespaceGrant)

			ad.Get("/tokens", s.handleAdminListTokens)
			ad.Delete("/tokens/{id}", s.handleAdminRevokeToken)

			ad.Post("/namespaces", s.handleAdminCreateNamespace)
			ad.Get("/namespaces", s.handleAdminListNamespaces)
			ad.Delete("/namespaces/{id}", s.handleAdminDeleteNamespace)
		})

		api.Group(func(auth chi.Router) {
			auth.Use(s.BearerAuthMiddleware)

			auth.Get("/me", s.handleMe)
			auth.Get("/tokens", s.handleListOwnTokens)
			auth.Post("/tokens", s.handleCreateToken)
			auth.Delete("/tokens/{id}", s.handleDeleteToken)

			auth.Get("/namespaces", s.handleListNamespaces)

			auth.Route("/repos", func(rr chi.Router) {
				rr.Get("/", s.handleListRepos)
				rr.Post("/", s.handleCreateRepo)

				rr.Route("/{repo}", func(one chi.Router) {
					one.Get("/", s.handleGetRepo)
					one.Patch("/", s.handleUpdateRepo)
					one.Delete("/", s.handleDeleteRepo)

					one.Post("/folders", s.handleSetRepoFolder)
					one.Post("/tags", s.handleAttachRepoTag)
					one.Delete("/tags/{tag}", s.handleDetachRepoTag)

					one.Get("/grants", s.handleListRepoGrants)
					one.Post("/grants", s.handleUpsertRepoGrant)
					one.Delete("/grants/{user}", s.handleDeleteRepoGrant)

					one.Get("/refs", s.handleRepoRefs)
					one.Get("/commits", s.handleRepoCommits)
					one.Get("/commits/{rev}", s.handleRepoCommit)
					one.Get("/tree/{rev}", s.handleRepoTree)
					one.Get("/blob/{rev}", s.handleRepoBlob)
					one.Get("/readme/{rev}", s.handleRepoReadme)
					one.Get("/blame/{rev}", s.handleRepoBlame)
					one.Get("/compare/{range}", s.handleRepoCompare)
					one.Get("/archive/{rev}", s.handleRepoArchive)
				})
			})

			auth.Route("/folders", func(fr chi.Router) {
				fr.Get("/", s.handleListFolders)
				fr.Post("/", s.handleCreateFolder)
				fr.Get("/{id}", s.handleGetFolder)
				fr.Patch("/{id}", s.handleUpdateFolder)
				fr.Delete("/{id}", s.handleDeleteFolder)
			})

			auth.Route("/tags", func(tr chi.Router) {
				tr.Get("/", s.handleListTags)
				tr.Post("/", s.handleCreateTag)
				tr.Patch("/{id}", s.handleUpdateTag)
				tr.Delete("/{id}", s.handleDeleteTag)
			})
		})
	})

	r.Route("/git/{namespace}/{repo}", func(g chi.Router) {
		g.Use(s.GitAuthMiddleware)
		g.Get("/info/refs", s.handleInfoRefs)
		g.Post("/git-upload-pack", s.handleUploadPack)
		g.Post("/git-receive-pack", s.handleReceivePack)
	})

	r.Route("/git-lfs/{namespace}/{repo}", func(g chi.Router) {
		g.Use(s.GitAuthMiddleware)
		g.Post("/objects/batch", s.handleLFSBatch)
		g.Put("/objects/{oid}", s.handleLFSUpload)
		g.Get("/objects/{oid}", s.handleLFSDownload)
		g.Post("/objects/{oid}/verify", s.handleLFSVerify)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
