package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller: either the admin-root token
// (User is nil) or a user-bound token with its user row loaded.
type Principal struct {
	Token *store.Token
	User  *store.User
}

// IsAdmin reports whether the caller holds every scope implicitly.
func (p *Principal) IsAdmin() bool {
	if p.Token.IsAdmin() {
		return true
	}
	return p.User != nil && p.User.IsAdmin
}

// GetPrincipal retrieves the authenticated principal from the request
// context, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// lookupPrincipal resolves a wire token to a principal. Unknown,
// revoked, and mismatched tokens all collapse into the same
// Unauthenticated answer so callers cannot probe lookup prefixes.
func lookupPrincipal(st store.Store, raw string) (*Principal, error) {
	lookup, _, err := core.ParseToken(raw)
	if err != nil {
		return nil, errUnauthenticated
	}

	token, err := st.GetTokenByLookup(lookup)
	if err != nil {
		return nil, err
	}
	if token == nil || token.RevokedAt != nil {
		return nil, errUnauthenticated
	}

	if err := core.VerifyToken(raw, token.SecretHash); err != nil {
		return nil, errUnauthenticated
	}

	p := &Principal{Token: token}
	if token.UserID != nil {
		user, err := st.GetUser(*token.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, errUnauthenticated
		}
		p.User = user
	}

	st.TouchToken(token.ID)
	return p, nil
}

// BearerAuthMiddleware authenticates REST requests via
// Authorization: Bearer <token>.
func (s *Server) BearerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			JSONError(w, KindUnauthenticated, "authentication required")
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			JSONError(w, KindUnauthenticated, "bearer authorization required")
			return
		}

		p, err := lookupPrincipal(s.store, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.writeAuthFailure(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GitAuthMiddleware authenticates Git and LFS requests. Credentials
// arrive as HTTP Basic with username "x-token", or as a Bearer header.
// Missing credentials get a Basic challenge so Git clients retry with
// credentials.
func (s *Server) GitAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw string
		if username, password, ok := r.BasicAuth(); ok {
			if username != "x-token" {
				s.gitChallenge(w)
				return
			}
			raw = password
		} else if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimPrefix(header, "Bearer ")
		} else {
			s.gitChallenge(w)
			return
		}

		p, err := lookupPrincipal(s.store, raw)
		if err != nil {
			if err == errUnauthenticated {
				s.gitChallenge(w)
				return
			}
			s.writeAuthFailure(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) gitChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="cutman"`)
	JSONError(w, KindUnauthenticated, "authentication required")
}

func (s *Server) writeAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	if err == errUnauthenticated {
		JSONError(w, KindUnauthenticated, "invalid token")
		return
	}
	s.internalError(w, r, err)
}

// RequireAdmin allows only the admin principal through.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil {
			JSONError(w, KindUnauthenticated, "authentication required")
			return
		}
		if !p.IsAdmin() {
			JSONError(w, KindForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request with method, path, status,
// and duration.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

// Recoverer converts panics into Internal error envelopes with a
// correlation id, logged server-side.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				id := core.NewID()
				s.log.WithFields(logrus.Fields{
					"correlation_id": id,
					"panic":          rec,
					"path":           r.URL.Path,
				}).Error("handler panic")
				JSONErrorDetails(w, KindInternal, "internal error", map[string]any{"correlation_id": id})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// internalError logs the cause under a correlation id and returns an
// opaque Internal envelope.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	id := core.NewID()
	s.log.WithFields(logrus.Fields{
		"correlation_id": id,
		"error":          err,
		"path":           r.URL.Path,
	}).Error("internal error")
	JSONErrorDetails(w, KindInternal, "internal error", map[string]any{"correlation_id": id})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps pack streaming unbuffered through the logger.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
