package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"contact-manager/core/loader"
	"contact-manager/core/logger"
	"contact-manager/core/middleware/auth"
	"contact-manager/core/middleware/rayid"
	"contact-manager/feature/contacts"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the contact manager server",
	Long:  `Starts the HTTP server, loads all enabled features and runs the background sync sweeper.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		appCtx, err := buildApplication(ctx)
		if err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
		logg := appCtx.log
		defer logg.Sync()

		// Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// Feature Loader
		mgr := loader.NewManager()
		mgr.Register(appCtx.contacts)
		mgr.Register(appCtx.dedupe)
		mgr.Register(appCtx.sharing)
		mgr.Register(appCtx.sync)

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: appCtx.cfg.Server.ApiKey}))

		// Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// Contact lifecycle audit trail
		go logStoreEvents(ctx, appCtx.contactStore, logg)

		// Background sync sweeper
		if appCtx.sync.IsEnabled() {
			go appCtx.sync.Service().Sweeper().Run(ctx)
		}

		// Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", appCtx.cfg.Server.Port))
			if err := app.Listen(appCtx.cfg.Server.Addr()); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		cancel()
		_ = app.Shutdown()
	},
}

// logStoreEvents drains store notifications into the structured log until the
// context is cancelled.
func logStoreEvents(ctx context.Context, store *contacts.Store, logg *zap.Logger) {
	events := store.Subscribe(64)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logg.Info("Contact event",
				zap.String("type", string(ev.Type)),
				zap.String("contact_id", ev.ContactID),
				zap.String("username", ev.Username),
			)
		}
	}
}

func init() {
	RootCmd.AddCommand(startCmd)
}
