package api

import (
	"net/http"

	"sheild-gateway/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupDataRouter serves device ingestion.
func SetupDataRouter(h *APIHandler, rl *RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger.Named("data")))
	r.Use(middleware.Recoverer)
	r.Use(rl.Middleware)

	r.With(h.Auth.APIKeyMiddleware).Post("/data", h.HandleDataIngest)
	r.Get("/health", h.HandleHealth)

	return r
}

// SetupUIRouter serves the dashboard API, websockets and metrics.
func SetupUIRouter(h *APIHandler, rl *RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger.Named("ui")))
	r.Use(middleware.Recoverer)
	r.Use(CORS(h.AllowedOrigins))

	r.Get("/health", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	r.Get("/ws/alerts", h.HandleWebSocket(websocket.NamespaceAlerts))
	r.Get("/ws/sensors", h.HandleWebSocket(websocket.NamespaceSensors))

	r.Route("/api", func(r chi.Router) {
		r.Use(rl.Middleware)
		r.Post("/auth/login", h.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.JWTMiddleware())

			r.Get("/auth/me", h.HandleMe)
			r.Get("/alerts", h.HandleAlerts)
			r.Post("/alerts", h.HandleCreateAlert)
			r.Get("/alerts/history", h.HandleAlertHistory)
			r.Get("/alerts/{id}", h.HandleGetAlert)
			r.Put("/alerts/{id}", h.HandleUpdateAlert)
			r.Delete("/alerts/{id}", h.HandleDeleteAlert)

			r.Get("/maintenance", h.HandleListMaintenance)
			r.Post("/maintenance", h.HandleCreateMaintenance)
			r.Get("/maintenance/{id}", h.HandleGetMaintenance)
			r.Put("/maintenance/{id}", h.HandleUpdateMaintenance)
			r.Delete("/maintenance/{id}", h.HandleDeleteMaintenance)

			r.Get("/sensors/{machineId}/logs", h.HandleSensorLogs)

			r.Post("/predictions/predict", h.HandlePredict)
			r.Post("/predictions/analyze", h.HandleAnalyze)
			r.Get("/predictions/{machineId}", h.HandlePredictionHistory)

			r.Get("/machines", h.HandleListMachines)
			r.Post("/machines", h.HandleUpsertMachine)
			r.Get("/machines/{machineId}", h.HandleGetMachine)

			r.Get("/reports", h.HandleListReports)
			r.Post("/reports", h.HandleCreateReport)
			r.Post("/reports/generate", h.HandleGenerateReport)
			r.Get("/reports/{id}", h.HandleGetReport)
			r.Put("/reports/{id}", h.HandleUpdateReport)
			r.Delete("/reports/{id}", h.HandleDeleteReport)
		})
	})

	return r
}
