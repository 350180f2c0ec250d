package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/knowledge"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/observability"
	"github.com/knossos-io/knossos/pkg/orgs"
	"github.com/knossos-io/knossos/pkg/storage"
	"github.com/knossos-io/knossos/pkg/workspaces"
)

// maxRequestBodyBytes caps request bodies well above any legitimate chunk
// replacement payload.
const maxRequestBodyBytes = 8 << 20

// Options carries the optional server collaborators. Every field may be
// left nil; the server falls back to no-op implementations.
type Options struct {
	Logger      *logrus.Logger
	Metrics     *observability.Metrics
	AuditLogger audit.Logger
	AuditStore  audit.Store

	// LogAllRequests makes the audit middleware record reads as well as
	// mutations.
	LogAllRequests bool

	// RateLimit, when set, is installed in front of every API route.
	RateLimit mux.MiddlewareFunc
}

// Server is the HTTP API for the platform. It owns the router, the domain
// services, and the middleware chain.
type Server struct {
	router  *mux.Router
	db      *sql.DB
	schema  storage.Schema
	logger  *logrus.Logger
	metrics *observability.Metrics

	orgService     *orgs.PostgresService
	resolver       *access.Resolver
	workspaces     *workspaces.Service
	entries        *knowledge.EntryStore
	groups         *knowledge.GroupRegistry
	filters        *knowledge.FilterRegistry
	guard          *knowledge.MutationGuard
	auditLogger    audit.Logger
	auditStore     audit.Store
	logAllRequests bool
}

// NewServer creates a fully wired API server.
func NewServer(db *sql.DB, schema storage.Schema, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = audit.NopLogger()
	}

	orgService := orgs.NewPostgresService(db, schema)
	resolver := access.NewResolver(db, schema)

	s := &Server{
		router:         mux.NewRouter(),
		db:             db,
		schema:         schema,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		orgService:     orgService,
		resolver:       resolver,
		workspaces:     workspaces.NewService(db, schema, resolver, opts.AuditLogger),
		entries:        knowledge.NewEntryStore(db, schema, resolver),
		groups:         knowledge.NewGroupRegistry(db, schema, orgService, opts.AuditLogger),
		filters:        knowledge.NewFilterRegistry(db, schema),
		guard:          knowledge.NewMutationGuard(db, schema, resolver, opts.AuditLogger),
		auditLogger:    opts.AuditLogger,
		auditStore:     opts.AuditStore,
		logAllRequests: opts.LogAllRequests,
	}

	s.setupRoutes(opts)
	return s
}

func (s *Server) setupRoutes(opts Options) {
	s.router.Use(mux.MiddlewareFunc(middleware.RequestIDMiddleware))
	if s.metrics != nil {
		s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(s.metrics)))
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(httputil.ContentTypeMiddleware))
	api.Use(mux.MiddlewareFunc(httputil.MaxBytesMiddleware(maxRequestBodyBytes)))

	principal := middleware.NewPrincipalMiddleware(false)
	api.Use(principal.Handler)

	if opts.RateLimit != nil {
		api.Use(opts.RateLimit)
	}

	auditMW := audit.NewMiddleware(s.auditLogger, s.logAllRequests)
	api.Use(auditMW.Handler)

	orgCtx := middleware.NewOrgContextMiddleware(s.orgService)
	api.Use(orgCtx.Handler)

	NewOrgHandlers(s.orgService, s.auditLogger).RegisterRoutes(api)
	NewTeamHandlers(s.orgService).RegisterRoutes(api)
	NewWorkspaceHandlers(s.workspaces).RegisterRoutes(api)
	NewKnowledgeHandlers(s.entries, s.guard, s.resolver, s.metrics).RegisterRoutes(api)
	NewGroupHandlers(s.groups).RegisterRoutes(api)
	NewFilterHandlers(s.filters).RegisterRoutes(api)
	if s.auditStore != nil {
		NewAuditHandlers(s.auditStore, s.orgService).RegisterRoutes(api)
	}
}

// Router returns the configured router, ready to serve.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
