package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"halligan-rms/api/handlers"
	"halligan-rms/config"
	"halligan-rms/core/auth"
	"halligan-rms/core/autosave"
	"halligan-rms/core/incidents"
	"halligan-rms/core/rbac"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

// ServerDeps bundles everything the HTTP layer needs; composed in
// core/appbootstrap.
type ServerDeps struct {
	Users          store.UsersStore
	Sessions       store.SessionStore
	Audits         store.AuditStore
	Policy         *rbac.Policy
	SessionManager *auth.SessionManager
	IncidentsSvc   *incidents.Service
	Workbook       *workbook.Store
	Autosave       *autosave.Scheduler
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	users           store.UsersStore
	sessions        store.SessionStore
	audits          store.AuditStore
	policy          *rbac.Policy
	sessionManager  *auth.SessionManager
	incidentsSvc    *incidents.Service
	workbook        *workbook.Store
	autosave        *autosave.Scheduler
	mux             *chi.Mux
	activityTracker *sessionActivity
	loginLimiter    *requestLimiter
	startedAt       time.Time
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	burst := cfg.Security.LoginBurst
	if burst <= 0 {
		burst = 5
	}
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		sessions:        deps.Sessions,
		audits:          deps.Audits,
		policy:          deps.Policy,
		sessionManager:  deps.SessionManager,
		incidentsSvc:    deps.IncidentsSvc,
		workbook:        deps.Workbook,
		autosave:        deps.Autosave,
		activityTracker: newSessionActivity(),
		loginLimiter:    newLimiter(burst, time.Minute),
		startedAt:       time.Now().UTC(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

type routeHandlers struct {
	auth      *handlers.AuthHandler
	incidents *handlers.IncidentsHandler
	reports   *handlers.ReportsHandler
	rosters   *handlers.RostersHandler
	workbook  *handlers.WorkbookHandler
	accounts  *handlers.AccountsHandler
	audit     *handlers.AuditHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.cfg, s.users, s.sessions, s.sessionManager, s.policy, s.audits, s.logger),
		incidents: handlers.NewIncidentsHandler(s.incidentsSvc, s.logger),
		reports:   handlers.NewReportsHandler(s.incidentsSvc),
		rosters:   handlers.NewRostersHandler(s.incidentsSvc),
		workbook:  handlers.NewWorkbookHandler(s.workbook, s.autosave, s.audits, s.logger),
		accounts:  handlers.NewAccountsHandler(s.cfg, s.users, s.sessions, s.audits, s.logger),
		audit:     handlers.NewAuditHandler(s.audits),
	}
}

func (s *Server) routes() {
	h := s.newRouteHandlers()

	mux := chi.NewRouter()
	mux.Use(s.recoverMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)

	mux.Get("/api/health", h.workbook.Health)
	mux.Post("/api/auth/login", s.rateLimitLogin(h.auth.Login))
	mux.Post("/api/auth/logout", s.withSession(h.auth.Logout))
	mux.Get("/api/auth/me", s.withSession(h.auth.Me))
	mux.Post("/api/auth/change-password", s.withSession(h.auth.ChangePassword))

	mux.Route("/api/incidents", func(r chi.Router) {
		r.Get("/", s.withSession(h.incidents.List))
		r.Post("/", s.withSession(h.incidents.SaveDraft))
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", s.withSession(h.incidents.Get))
			r.Get("/report", s.withSession(h.incidents.Snapshot))
			r.Post("/submit", s.withSession(h.incidents.Submit))
			r.Post("/approve", s.withSession(h.incidents.Approve))
			r.Post("/reject", s.withSession(h.incidents.Reject))
			r.Post("/send-back", s.withSession(h.incidents.SendBack))
			r.Post("/reopen", s.withSession(h.incidents.Reopen))
			r.Post("/archive", s.withSession(h.incidents.Archive))
			r.Delete("/", s.withSession(h.incidents.Purge))
			r.Get("/children/{sheet}", s.withSession(h.incidents.ListChildren))
			r.Post("/children/{sheet}", s.withSession(h.incidents.AddChildRow))
			r.Post("/personnel", s.withSession(h.incidents.AssignPersonnel))
			r.Post("/apparatus", s.withSession(h.incidents.AssignApparatus))
		})
	})

	mux.Route("/api/reports", func(r chi.Router) {
		r.Get("/by-type", s.withSession(h.reports.ByType))
		r.Get("/by-month", s.withSession(h.reports.ByMonth))
		r.Get("/response-times", s.withSession(h.reports.ResponseTimes))
	})

	mux.Get("/api/lookups", s.withSession(h.rosters.Lookups))
	mux.Route("/api/rosters/{sheet}", func(r chi.Router) {
		r.Get("/", s.withSession(h.rosters.List))
		r.Post("/", s.withSession(h.rosters.Save))
		r.Put("/", s.withSession(h.rosters.Replace))
	})

	mux.Route("/api/workbook", func(r chi.Router) {
		r.Post("/save", s.withSession(s.requirePermission(rbac.PermSaveWorkbook)(h.workbook.Save)))
		r.Get("/export", s.withSession(s.requirePermission(rbac.PermSaveWorkbook)(h.workbook.Export)))
		r.Post("/reload", s.withSession(s.requirePermission(rbac.PermManageAccounts)(h.workbook.Reload)))
	})

	mux.Route("/api/accounts", func(r chi.Router) {
		guard := s.requirePermission(rbac.PermManageAccounts)
		r.Get("/", s.withSession(guard(h.accounts.List)))
		r.Post("/", s.withSession(guard(h.accounts.Create)))
		r.Put("/{id}", s.withSession(guard(h.accounts.Update)))
		r.Post("/{id}/activate", s.withSession(guard(h.accounts.SetActive(true))))
		r.Post("/{id}/deactivate", s.withSession(guard(h.accounts.SetActive(false))))
	})

	mux.Get("/api/audit", s.withSession(s.requirePermission(rbac.PermViewAudit)(h.audit.List)))

	s.mux = mux
}
