package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/auth"
	"github.com/ukydev/vehicle-ledger/internal/ledger"
	"github.com/ukydev/vehicle-ledger/internal/middleware"
)

// RouterConfig carries what NewRouter needs beyond the ledger.
type RouterConfig struct {
	Auth         *auth.Service
	Owners       OwnerRepository
	AuthDisabled bool
	// RateLimit is requests per minute per client; zero disables it.
	RateLimit int
}

// NewRouter mounts every API route.
func NewRouter(l *ledger.Ledger, cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth, cfg.Owners)
	recordsHandler := NewRecordsHandler(l)
	ledgerHandler := NewLedgerHandler(l)
	backupHandler := NewBackupHandler(l)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if cfg.RateLimit > 0 {
		r.Use(middleware.NewRateLimitMiddleware().RateLimit(cfg.RateLimit, 60))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	authenticate := func(next http.Handler) http.Handler { return next }
	if !cfg.AuthDisabled {
		authenticate = middleware.NewAuthMiddleware(cfg.Auth).Authenticate
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/status", authHandler.Status)
		r.Post("/setup", authHandler.Setup)
		r.Post("/login", authHandler.Login)
		r.With(authenticate).Post("/password", authHandler.ChangePassword)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/records/{collection}", func(r chi.Router) {
			r.Get("/", recordsHandler.List)
			r.Post("/", recordsHandler.Create)
			r.Delete("/", recordsHandler.Clear)
			r.Get("/{id}", recordsHandler.Get)
			r.Put("/{id}", recordsHandler.Update)
			r.Delete("/{id}", recordsHandler.Delete)
		})

		r.Post("/totals/rebuild", ledgerHandler.RebuildTotals)
		r.Get("/totals/{kind}", ledgerHandler.Total)
		r.Get("/totals/{kind}/breakdown", ledgerHandler.Breakdown)

		r.Get("/fuel/efficiency", ledgerHandler.FuelEfficiency)
		r.Get("/reminders", ledgerHandler.Reminders)
		r.Post("/maintenance/{id}/complete", ledgerHandler.CompleteService)
		r.Post("/maintenance/{id}/services/{index}/complete", ledgerHandler.CompleteService)

		r.Get("/profile", ledgerHandler.GetProfile)
		r.Put("/profile", ledgerHandler.UpdateProfile)
		r.Put("/profile/odometer", ledgerHandler.SetOdometer)

		r.Get("/settings/{key}", ledgerHandler.GetSetting)
		r.Put("/settings/{key}", ledgerHandler.PutSetting)

		r.Get("/export", backupHandler.Export)
		r.Post("/import", backupHandler.Import)
	})

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": chimw.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
