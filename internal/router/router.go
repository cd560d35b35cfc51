package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taberu-app/api/internal/config"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/enum"
	"github.com/taberu-app/api/internal/handler"
	mw "github.com/taberu-app/api/internal/middleware"
	"github.com/taberu-app/api/internal/service"
	"github.com/taberu-app/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Customer-facing routes (menu reads, order placement and tracking) are
// public; catalog writes and customer records require a staff JWT.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, notifier service.Notifier, paypay handler.PaymentChecker) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // customer app dev server
			"http://localhost:5174", // staff dashboard dev server
			"https://order.taberu.app",
			"https://staff.taberu.app",
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Menu reads are public so the LIFF customer app can render without auth.
	menuHandler := handler.NewMenuHandler(queries)
	r.Route("/menu", menuHandler.RegisterReadRoutes)

	// Orders: placed and tracked by customers identified only by userId,
	// so the whole group is public.
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, notifier, hub)
	orderHandler := handler.NewOrderHandler(orderService, queries, paypay)
	r.Route("/orders", orderHandler.RegisterRoutes)

	// Protected routes (require a staff JWT)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleStaff))

		// Customer records and aggregates
		userHandler := handler.NewUserHandler(queries)
		r.Route("/users", userHandler.RegisterRoutes)

		// Catalog writes are admin-only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			categoryHandler := handler.NewCategoryHandler(queries)
			r.Route("/categories", categoryHandler.RegisterRoutes)

			// Write methods on /menu; the read methods are registered on
			// the public group above.
			menuHandler.RegisterWriteRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
