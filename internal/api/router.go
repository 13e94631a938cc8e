package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/johnngondi/vito/internal/api/handlers"
	"github.com/johnngondi/vito/internal/services"
	"github.com/johnngondi/vito/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services groups everything the router serves.
type Services struct {
	Servers   services.ServerServiceProvider
	SshKeys   services.SshKeyServiceProvider
	Storage   services.StorageServiceProvider
	Databases services.DatabaseServiceProvider
	Backups   services.BackupServiceProvider
	Events    services.EventServiceProvider
	Jobs      handlers.JobAdmin
}

// NewRouter creates and configures a new Chi router.
func NewRouter(hub *websocket.Hub, svc Services, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	serverHandler := handlers.NewServerHandler(svc.Servers)
	keyHandler := handlers.NewSshKeyHandler(svc.SshKeys)
	storageHandler := handlers.NewStorageHandler(svc.Storage, svc.Databases)
	backupHandler := handlers.NewBackupHandler(svc.Backups)
	eventHandler := handlers.NewEventHandler(svc.Events)
	jobHandler := handlers.NewJobHandler(svc.Jobs)
	wsHandler := handlers.NewWebSocketHandler(hub, svc.Servers)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws/servers/{id}", wsHandler.Serve)

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", serverHandler.GetAll)
			r.Post("/", serverHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", serverHandler.Get)

				r.Route("/ssh-keys", func(r chi.Router) {
					r.Get("/", keyHandler.GetForServer)
					r.Post("/", keyHandler.DeployNew)
					r.Post("/existing", keyHandler.DeployExisting)
					r.Delete("/{keyID}", keyHandler.Delete)
					r.Post("/{keyID}/redeploy", keyHandler.Redeploy)
				})

				r.Get("/databases", storageHandler.GetDatabases)
				r.Post("/databases", storageHandler.CreateDatabase)

				r.Get("/backups", backupHandler.GetAllForServer)
				r.Post("/backups", backupHandler.Create)
			})
		})

		r.Route("/ssh-keys", func(r chi.Router) {
			r.Get("/", keyHandler.GetAll)
			r.Post("/", keyHandler.Create)
		})

		r.Route("/storage-providers", func(r chi.Router) {
			r.Get("/", storageHandler.GetProviders)
			r.Post("/", storageHandler.CreateProvider)
			r.Get("/{id}", storageHandler.GetProvider)
		})

		r.Route("/backups/{backupID}", func(r chi.Router) {
			r.Get("/", backupHandler.Get)
			r.Delete("/", backupHandler.Delete)
			r.Post("/run", backupHandler.Run)
			r.Post("/pause", backupHandler.Pause)
			r.Post("/resume", backupHandler.Resume)
			r.Get("/files", backupHandler.GetFiles)
		})
		r.Delete("/backup-files/{fileID}", backupHandler.DeleteFile)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/dead", jobHandler.GetDead)
			r.Delete("/dead", jobHandler.Purge)
			r.Post("/{jobID}/retry", jobHandler.Retry)
		})

		r.Get("/events", eventHandler.GetRecent)
	})

	return r
}
