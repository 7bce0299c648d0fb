package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"itch-archiver/core/loader"
	"itch-archiver/core/logger"
	"itch-archiver/core/middleware/auth"
	"itch-archiver/core/middleware/rayid"
	"itch-archiver/feature/integrity"
	"itch-archiver/feature/mirror"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only API over the mirror",
	Long:  `Starts the HTTP server exposing titles, the error log and mirror verification.`,
	RunE:  runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logg, err := setup()
	if err != nil {
		return err
	}
	defer logg.Sync()

	var hist mirror.HistoryReader
	if ledger := openLedger(cfg, logg); ledger != nil {
		hist = ledger
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true, // We will log our own startup message
	})

	mgr := loader.NewManager(logg)
	mgr.Register(mirror.NewFeature(cfg.Mirror.Root, hist, logg))
	mgr.Register(integrity.NewFeature(cfg.Mirror.Root, logg))

	// RayID must be first to trace everything
	app.Use(rayid.New())

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

	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

	if err := mgr.LoadAll(app); err != nil {
		return err
	}

	go func() {
		logg.Info("Starting server", zap.String("addr", cfg.Server.Addr()), zap.String("root", cfg.Mirror.Root))
		if err := app.Listen(cfg.Server.Addr()); err != nil {
			logg.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logg.Info("Shutting down server...")
	return app.Shutdown()
}
