package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"anchor-backend/internal/admin"
	"anchor-backend/internal/auth"
	"anchor-backend/internal/config"
	"anchor-backend/internal/engine"
	"anchor-backend/internal/registry"
	"anchor-backend/internal/store"
	"anchor-backend/internal/team"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}

	reg := registry.New()
	if err := registry.LoadAll(ctx, db.DB, reg); err != nil {
		log.Printf("WARN: Failed to load entity registry: %v", err)
	}

	hooks := engine.NewHookRegistry()
	if err := engine.LoadWebhooks(ctx, db, hooks); err != nil {
		log.Printf("WARN: Failed to load webhooks: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes carry no auth middleware
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	authMW := auth.Middleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin(db)

	migrator := store.NewMigrator(db)
	adminHandler := admin.NewHandler(db, reg, migrator)
	admin.RegisterRoutes(app, adminHandler, authMW, adminMW)

	teamService := team.NewService(db)
	teamHandler := team.NewHandler(teamService)
	team.RegisterRoutes(app, teamHandler, authMW)

	// Dynamic entity routes last: /api/:entity must not shadow the above
	eng := engine.New(db, reg, hooks)
	engineHandler := engine.NewHandler(eng)
	engine.RegisterRoutes(app, engineHandler, authMW)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
