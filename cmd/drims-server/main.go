package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	identityevents "github.com/drims/drims-backend/internal/identity/events"
	identityhandler "github.com/drims/drims-backend/internal/identity/handler"
	"github.com/drims/drims-backend/internal/identity/jwt"
	identitymw "github.com/drims/drims-backend/internal/identity/middleware"
	identityrepo "github.com/drims/drims-backend/internal/identity/repository"
	identityservice "github.com/drims/drims-backend/internal/identity/service"
	inventoryevents "github.com/drims/drims-backend/internal/inventory/events"
	inventoryhandler "github.com/drims/drims-backend/internal/inventory/handler"
	inventoryrepo "github.com/drims/drims-backend/internal/inventory/repository"
	inventoryservice "github.com/drims/drims-backend/internal/inventory/service"
	reliefevents "github.com/drims/drims-backend/internal/relief/events"
	reliefhandler "github.com/drims/drims-backend/internal/relief/handler"
	"github.com/drims/drims-backend/internal/relief/lock"
	reliefrepo "github.com/drims/drims-backend/internal/relief/repository"
	reliefservice "github.com/drims/drims-backend/internal/relief/service"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("drims-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("drims-server", cfg.Server.Environment)
	log.Info().Msg("starting DRIMS server")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ. The server stays up without it; publishers are
	// nil-guarded and events are simply skipped.
	var (
		rmq          *messaging.RabbitMQ
		invPublisher *inventoryevents.InventoryEventPublisher
		rlfPublisher *reliefevents.ReliefEventPublisher
		usrPublisher *identityevents.UserEventPublisher
	)
	rmq, err = messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Warn().Err(err).Msg("RabbitMQ unavailable, events disabled")
	} else {
		defer rmq.Close()
		if invPublisher, err = inventoryevents.NewInventoryEventPublisher(rmq, log); err != nil {
			log.Fatal().Err(err).Msg("failed to create inventory event publisher")
		}
		if rlfPublisher, err = reliefevents.NewReliefEventPublisher(rmq, log); err != nil {
			log.Fatal().Err(err).Msg("failed to create relief event publisher")
		}
		if usrPublisher, err = identityevents.NewUserEventPublisher(rmq, log); err != nil {
			log.Fatal().Err(err).Msg("failed to create user event publisher")
		}
	}

	// Connect to Redis for package edit locks
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Initialize repositories
	warehouseRepo := inventoryrepo.NewWarehouseRepository(db)
	itemRepo := inventoryrepo.NewItemRepository(db)
	invRepo := inventoryrepo.NewInventoryRepository(db)
	batchRepo := inventoryrepo.NewBatchRepository(db)
	requestRepo := reliefrepo.NewRequestRepository(db)
	packageRepo := reliefrepo.NewPackageRepository(db)
	pkgItemRepo := reliefrepo.NewPackageItemRepository(db)
	availRepo := reliefrepo.NewAvailabilityRepository(db)
	userRepo := identityrepo.NewUserRepository(db)

	// Initialize services
	inventoryService := inventoryservice.NewInventoryService(warehouseRepo, itemRepo, invRepo, batchRepo, invPublisher, log)
	requestService := reliefservice.NewRequestService(requestRepo, itemRepo, log)
	allocationService := reliefservice.NewAllocationService(itemRepo, availRepo, pkgItemRepo, log)
	packageService := reliefservice.NewPackageService(db, requestRepo, packageRepo, pkgItemRepo, availRepo, itemRepo, batchRepo, invRepo, rlfPublisher, log)
	dispatchService := reliefservice.NewDispatchService(db, requestRepo, packageRepo, pkgItemRepo, batchRepo, invRepo, rlfPublisher, log)

	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := identityservice.NewAuthService(userRepo, jwtManager, usrPublisher, log)
	authenticator := identitymw.NewAuthenticator(jwtManager, log)

	packageLocker := lock.NewPackageLocker(redisClient, cfg.Redis.LockTTL)

	// Initialize handlers
	authHandler := identityhandler.NewAuthHandler(authService, log)
	inventoryHandler := inventoryhandler.NewInventoryHandler(inventoryService, log)
	batchHandler := inventoryhandler.NewBatchHandler(inventoryService, log)
	requestHandler := reliefhandler.NewRequestHandler(requestService, log)
	allocationHandler := reliefhandler.NewAllocationHandler(allocationService, log)
	packageHandler := reliefhandler.NewPackageHandler(packageService, dispatchService, packageLocker, log)

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "drims-server",
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticator.Middleware)

			r.Get("/auth/me", authHandler.Me)
			r.With(authenticator.RequireRole("ADMIN")).Post("/auth/users", authHandler.CreateUser)

			r.Route("/inventory", func(r chi.Router) {
				r.Route("/warehouses", func(r chi.Router) {
					r.Get("/", inventoryHandler.ListWarehouses)
					r.Post("/", inventoryHandler.CreateWarehouse)
				})
				r.Route("/items", func(r chi.Router) {
					r.Get("/", inventoryHandler.ListItems)
					r.Post("/", inventoryHandler.CreateItem)
					r.Get("/{itemID}", inventoryHandler.GetItem)
					r.Get("/{itemID}/availability", inventoryHandler.ItemAvailability)
					r.Get("/{itemID}/batches", batchHandler.ListByItem)
				})
				r.Route("/batches", func(r chi.Router) {
					r.Post("/", batchHandler.Create)
					r.Get("/expiring", batchHandler.Expiring)
					r.Get("/{batchID}", batchHandler.Get)
					r.Put("/{batchID}", batchHandler.Update)
				})
			})

			r.Route("/relief", func(r chi.Router) {
				r.Route("/requests", func(r chi.Router) {
					r.Get("/", requestHandler.List)
					r.Post("/", requestHandler.Create)
					r.Get("/{requestID}", requestHandler.Get)
					r.Post("/{requestID}/items", requestHandler.AddItem)
				})

				// Batch availability query for allocation screens
				r.Get("/items/{itemID}/batches", allocationHandler.QueryBatches)

				r.Route("/packages", func(r chi.Router) {
					r.Post("/", packageHandler.Create)
					r.Get("/{packageID}", packageHandler.Get)
					r.Get("/{packageID}/items", packageHandler.Items)
					r.Put("/{packageID}/allocations", packageHandler.SaveAllocations)
					r.With(authenticator.RequireRole("COORDINATOR", "ADMIN")).
						Post("/{packageID}/dispatch", packageHandler.Dispatch)
					r.Post("/{packageID}/lock", packageHandler.Lock)
					r.Delete("/{packageID}/lock", packageHandler.Unlock)
				})
			})
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
