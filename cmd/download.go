package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"itch-archiver/core/catalog"
	"itch-archiver/core/config"
	"itch-archiver/core/database"
	"itch-archiver/core/errlog"
	"itch-archiver/core/history"
	"itch-archiver/core/itch"
	"itch-archiver/core/reconcile"
	"itch-archiver/core/storage"
	"itch-archiver/core/transfer"
	"itch-archiver/feature/library"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the download command
	downloadPlatform     string
	downloadJobs         int
	downloadRoot         string
	downloadSkipExisting bool
)

// downloadCmd runs one download pass over the whole library.
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download or update every owned title",
	Long: `Downloads every owned title into the mirror root.

Files already present and matching the remote checksum are skipped. Changed
files are moved to old/<date>-<name> before the new version is fetched.
Failures are appended to errors.txt in the mirror root and never stop the pass.

Examples:
  # Mirror everything into the current directory
  itch-archiver download

  # Only Linux builds, 8 titles at a time
  itch-archiver download --platform linux --jobs 8 --root /srv/itch`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadPlatform, "platform", "", "Only download builds for this platform (e.g. linux, windows, osx)")
	downloadCmd.Flags().IntVar(&downloadJobs, "jobs", 0, "Number of titles processed concurrently")
	downloadCmd.Flags().StringVar(&downloadRoot, "root", "", "Mirror root directory")
	downloadCmd.Flags().BoolVar(&downloadSkipExisting, "skip-existing", false, "Skip titles that already have a manifest")

	RootCmd.AddCommand(downloadCmd)
}

// applyMirrorFlags overrides configuration values with explicitly set flags.
func applyMirrorFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("platform") {
		cfg.Mirror.Platform = downloadPlatform
	}
	if flags.Changed("jobs") {
		cfg.Mirror.Jobs = downloadJobs
	}
	if flags.Changed("root") {
		cfg.Mirror.Root = downloadRoot
	}
	if flags.Changed("skip-existing") {
		cfg.Mirror.SkipExisting = downloadSkipExisting
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, logg, err := setup()
	if err != nil {
		return err
	}
	defer logg.Sync()
	applyMirrorFlags(cmd, cfg)

	if cfg.Itch.APIKey == "" {
		return errors.New("no API key configured, set ITCH_API_KEY")
	}

	root, err := filepath.Abs(cfg.Mirror.Root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create mirror root: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	unlock, err := library.AcquireLock(ctx, root, time.Duration(cfg.Mirror.LockTimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}
	defer unlock()

	api := itch.NewClient(cfg.Itch, logg)
	fetcher := transfer.New(time.Duration(cfg.Itch.TimeoutSeconds)*time.Second, transfer.WithLogger(logg))
	sink := errlog.NewFileSink(filepath.Join(root, catalog.ErrorLogName))

	opts := []reconcile.Option{reconcile.WithLogger(logg)}
	if ledger := openLedger(cfg, logg); ledger != nil {
		opts = append(opts, reconcile.WithRecorder(ledger))
	}
	if rep := openReplicator(ctx, cfg, logg); rep != nil {
		opts = append(opts, reconcile.WithReplicator(rep))
	}

	engine := reconcile.New(root, api, fetcher, sink, opts...)
	syncer := library.NewSyncer(api, engine, cfg.Mirror, logg)

	logg.Info("Mirror ready", zap.String("root", root), zap.String("error_log", sink.Path()))
	summary, err := syncer.Run(ctx, cfg.Itch.APIKey)
	if summary != nil && summary.Files[reconcile.ActionFailed] > 0 {
		logg.Warn("Some files could not be downloaded, see the error log",
			zap.Int("failed_files", summary.Files[reconcile.ActionFailed]),
			zap.String("error_log", sink.Path()))
	}
	return err
}

// openLedger connects the optional download history. Failures only disable it.
func openLedger(cfg *config.Config, logg *zap.Logger) *history.Ledger {
	if !cfg.Database.Enabled {
		return nil
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logg.Warn("Optional database connection failed, history disabled", zap.Error(err))
		return nil
	}
	ledger := history.NewLedger(db)
	if err := ledger.Migrate(); err != nil {
		logg.Warn("History migration failed, history disabled", zap.Error(err))
		return nil
	}
	logg.Info("Download history enabled", zap.String("driver", cfg.Database.Driver))
	return ledger
}

// openReplicator prepares the optional object replica. Failures only disable it.
func openReplicator(ctx context.Context, cfg *config.Config, logg *zap.Logger) *storage.Replicator {
	if !cfg.Storage.Enabled {
		return nil
	}
	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		logg.Warn("Failed to create storage client, replication disabled", zap.Error(err))
		return nil
	}
	rep := storage.NewReplicator(client, cfg.Storage, logg)
	if err := rep.EnsureBucket(ctx); err != nil {
		logg.Warn("Storage unavailable, replication disabled", zap.Error(err))
		return nil
	}
	logg.Info("Replication enabled", zap.String("bucket", cfg.Storage.Bucket))
	return rep
}
