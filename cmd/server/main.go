package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bakery-backend/internal/activity"
	"bakery-backend/internal/admin"
	"bakery-backend/internal/apperr"
	"bakery-backend/internal/auth"
	"bakery-backend/internal/config"
	"bakery-backend/internal/database"
	"bakery-backend/internal/events"
	"bakery-backend/internal/inventory"
	"bakery-backend/internal/logger"
	"bakery-backend/internal/models"
	"bakery-backend/internal/orders"
	"bakery-backend/internal/payment"
	"bakery-backend/internal/production"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer log.Sync()

	for _, w := range cfg.Warnings() {
		log.Warn("config", zap.String("warning", w))
	}

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	if cfg.SeedDemo {
		seeded, err := database.SeedDemo(db)
		if err != nil {
			return err
		}
		if seeded {
			log.Info("demo data seeded")
		}
	}

	bus := events.NewBus(log.Named("events"))
	invoices := orders.InvoiceSubscriber(db, log.Named("invoices"))
	bus.Subscribe(models.ActivityOrderApproved, "invoices", invoices)
	bus.Subscribe(models.ActivityOrderInvoiceRetry, "invoices", invoices)
	bus.SubscribeAll("activity", activity.Subscriber(db))
	if cfg.AMQP.URL != "" {
		relay, err := events.DialRabbit(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Named("amqp"))
		if err != nil {
			return err
		}
		defer relay.Close()
		bus.SubscribeAll("amqp", relay.Handle)
		log.Info("relaying events to rabbitmq", zap.String("exchange", cfg.AMQP.Exchange))
	}

	processor := payment.NewStripe(cfg.Payment.StripeSecretKey, cfg.Payment.Timeout)

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.ErrorHandler(log),
		BodyLimit:    8 * 1024 * 1024,
	})
	app.Use(requestid.New())
	app.Use(logger.Middleware(log))
	app.Use(recover.New())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	routes(app, cfg, db, bus, processor, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("port", cfg.HTTPPort))
		return app.Listen(":" + cfg.HTTPPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func routes(app *fiber.App, cfg *config.Config, db *gorm.DB, bus *events.Bus, processor payment.Processor, log *zap.Logger) {
	ledger := inventory.NewLedger(db)
	bom := inventory.NewBOMIndex(db)
	batches := production.NewService(db, bom, bus, log.Named("production"))
	orderSvc := orders.NewService(db, processor, bus, log.Named("orders"), cfg.Payment.Currency)

	api := app.Group("/api")

	// Public
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(cfg, db))
	api.Get("/products", inventory.ListProductsHandler(db, false))
	api.Get("/locations", admin.ListLocationsHandler(db, false))
	api.Post("/orders", orders.CreateOrderHandler(orderSvc))
	api.Get("/orders/:publicId", orders.GetPublicOrderHandler(orderSvc))
	api.Post("/webhooks/stripe", orders.StripeWebhookHandler(orderSvc, cfg.Payment.StripeWebhookSecret, log.Named("webhooks")))

	api.Get("/auth/me", auth.JWTMiddleware(cfg), auth.MeHandler(db))

	// Back office
	staff := api.Group("/admin", auth.JWTMiddleware(cfg), auth.RequireRole(models.RoleAdmin, models.RoleStaff))
	adminOnly := auth.RequireRole(models.RoleAdmin)

	staff.Post("/users", adminOnly, auth.CreateUserHandler(db))

	// Ingredients
	staff.Get("/ingredients", inventory.ListIngredientsHandler(db))
	staff.Post("/ingredients", adminOnly, inventory.CreateIngredientHandler(db, ledger, bus))
	staff.Get("/ingredients/low-stock", inventory.LowStockHandler(ledger))
	staff.Get("/ingredients/:id", inventory.GetIngredientHandler(db))
	staff.Put("/ingredients/:id", adminOnly, inventory.UpdateIngredientHandler(db, ledger, bus))
	staff.Post("/ingredients/:id/adjust", inventory.AdjustIngredientHandler(ledger, bus))
	staff.Get("/ingredients/:id/adjustments", inventory.ListAdjustmentsHandler(db))

	// Products and recipes
	staff.Get("/products", inventory.ListProductsHandler(db, true))
	staff.Post("/products", adminOnly, inventory.CreateProductHandler(db))
	staff.Post("/products/bom/import", adminOnly, inventory.ImportBOMHandler(bom, bus))
	staff.Put("/products/:id", adminOnly, inventory.UpdateProductHandler(db))
	staff.Get("/products/:id/bom", inventory.GetBOMHandler(bom))
	staff.Put("/products/:id/bom", adminOnly, inventory.ReplaceBOMHandler(bom, bus))

	// Locations
	staff.Get("/locations", admin.ListLocationsHandler(db, true))
	staff.Post("/locations", adminOnly, admin.CreateLocationHandler(db))
	staff.Put("/locations/:id", adminOnly, admin.UpdateLocationHandler(db))

	// Production
	staff.Get("/batches", production.ListBatchesHandler(batches))
	staff.Post("/batches", production.CreateBatchHandler(batches))
	staff.Get("/batches/:id", production.GetBatchHandler(batches))
	staff.Get("/batches/:id/requirements", production.BatchRequirementsHandler(batches))
	staff.Patch("/batches/:id/status", production.UpdateBatchStatusHandler(batches))
	staff.Get("/freezer-stock", production.ListFreezerStockHandler(db))

	// Orders
	staff.Get("/orders", orders.ListOrdersHandler(orderSvc))
	staff.Get("/orders/:id", orders.GetOrderHandler(orderSvc))
	staff.Patch("/orders/:id/status", orders.UpdateOrderStatusHandler(orderSvc))
	staff.Get("/orders/:id/invoice", orders.GetOrderInvoiceHandler(db))
	staff.Post("/orders/:id/invoice", orders.EnsureInvoiceHandler(db))
	staff.Get("/invoices", orders.ListInvoicesHandler(db))

	staff.Get("/activity", activity.ListActivityHandler(db))
}
