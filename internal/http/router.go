package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/screenfleet/server/internal/auth"
	"github.com/screenfleet/server/internal/gateway"
	"github.com/screenfleet/server/internal/http/handlers"
	"github.com/screenfleet/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	registrationHandler *handlers.RegistrationHandler,
	fleetHandler *handlers.FleetHandler,
	socketHandler *gateway.SocketHandler,
	jwtService *auth.JWTService,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/api/register", registrationHandler.HandleRegister)

	// Websocket endpoints authenticate themselves (token header or query
	// parameter) before upgrading.
	r.Get("/ws/device", socketHandler.HandleDevice)
	r.Get("/ws/operator", socketHandler.HandleOperator)

	// Internal command surface for the content scheduler.
	r.Route("/api/fleet", func(r chi.Router) {
		r.Use(middleware.RequireRole(jwtService, auth.RoleOperator))
		r.Post("/devices/{deviceID}/command", fleetHandler.HandleSendCommand)
		r.Post("/companies/{companyID}/broadcast", fleetHandler.HandleBroadcast)
	})

	return r
}
