package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tareas/internal/handlers"
	"tareas/internal/identity"
	"tareas/internal/middleware"
	"tareas/internal/services"
	"tareas/internal/store"
	"tareas/pkg/rabbitmq"
	"tareas/views"
)

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("IDENTITY_ENDPOINT", identity.DefaultEndpoint)
	viper.SetDefault("STORE_BACKEND", "memory")
	viper.SetDefault("DATABASE_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_DSN", "tareas.db")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.AutomaticEnv()

	appPort := viper.GetString("APP_PORT")
	apiKey := viper.GetString("FIREBASE_WEB_API_KEY")
	if apiKey == "" {
		log.Fatal("FIREBASE_WEB_API_KEY is required")
	}

	// --- Document store backend ---
	ctx := context.Background()
	docs, closeStore, err := newDocumentStore(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}
	defer closeStore()

	// --- RabbitMQ client (optional) ---
	var events services.EventPublisher
	if mqURL := viper.GetString("RABBITMQ_URL"); mqURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: mqURL})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		defer mqClient.Close()
		events = mqClient

		go func() {
			log.Println("Starting RabbitMQ consumer for task events...")
			err := mqClient.ConsumeTaskEvents(func(msg amqp.Delivery) error {
				log.Printf("Received task event (Tag: %d): %s", msg.DeliveryTag, string(msg.Body))
				return nil
			})
			if err != nil {
				log.Printf("Failed to start RabbitMQ consumer: %v", err)
			}
		}()
	} else {
		log.Println("RABBITMQ_URL not set, event publishing disabled")
	}

	// --- Sessions ---
	sessions := session.New(session.Config{
		Expiration:     24 * time.Hour,
		CookieHTTPOnly: true,
	})

	// --- Services ---
	gateway := identity.NewGateway(apiKey, viper.GetString("IDENTITY_ENDPOINT"))
	accountService := services.NewAccountService(gateway, docs, events)
	taskService := services.NewTaskService(docs, events)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(accountService, sessions)
	dashboardHandler := handlers.NewDashboardHandler(accountService, sessions)
	taskHandler := handlers.NewTaskHandler(taskService, sessions)

	// --- Fiber app ---
	app := fiber.New(fiber.Config{
		Views: views.Engine(),
	})
	app.Use(logger.New())

	// Public routes, registered before the guard so they bypass it
	authHandler.RegisterRoutes(app)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Guarded routes
	guarded := app.Group("", middleware.AuthRequired(sessions))
	dashboardHandler.RegisterRoutes(guarded)
	taskHandler.RegisterRoutes(guarded)

	// --- Start HTTP server ---
	log.Printf("Starting server on port %s", appPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// newDocumentStore builds the configured document-store backend and
// returns it with its teardown.
func newDocumentStore(ctx context.Context) (store.DocumentStore, func(), error) {
	noop := func() {}

	switch backend := viper.GetString("STORE_BACKEND"); backend {
	case "memory":
		return store.NewMemoryStore(), noop, nil

	case "gorm":
		dsn := viper.GetString("DATABASE_DSN")
		var dialector gorm.Dialector
		switch driver := viper.GetString("DATABASE_DRIVER"); driver {
		case "sqlite":
			dialector = sqlite.Open(dsn)
		case "postgres":
			dialector = postgres.Open(dsn)
		default:
			return nil, nil, fmt.Errorf("unknown DATABASE_DRIVER %q", driver)
		}
		db, err := gorm.Open(dialector, &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		docs, err := store.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		return docs, noop, nil

	case "firestore":
		projectID := viper.GetString("FIRESTORE_PROJECT_ID")
		if projectID == "" {
			return nil, nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
		docs, err := store.NewFirestoreStore(ctx, projectID)
		if err != nil {
			return nil, nil, err
		}
		return docs, func() {
			if err := docs.Close(); err != nil {
				log.Printf("Error closing firestore client: %v", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}
