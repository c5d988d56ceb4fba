package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/processing-backend/internal/app"
	"github.com/yungbote/processing-backend/internal/data/db"
	"github.com/yungbote/processing-backend/internal/platform/envutil"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "processing-backend",
	Short: "Candidate processing lifecycle API and reminder worker",
	Long: `processing-backend tracks overseas-recruitment candidates through their processing steps
and delivers follow-up reminders from a delayed job queue.

Examples:
  processing-backend serve                 # HTTP API with the in-process reminder worker
  processing-backend serve --no-worker     # HTTP API only
  processing-backend worker                # reminder worker only
  processing-backend migrate               # create/upgrade tables and indexes
  processing-backend seed -f catalog.yaml  # load step catalog and document rules`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		noWorker, _ := cmd.Flags().GetBool("no-worker")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, envutil.Bool("DB_AUTO_MIGRATE", true))
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Start(ctx, a.Cfg.WorkerEnabled && !noWorker); err != nil {
			return err
		}
		return a.Run(ctx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the reminder delivery worker without the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Clients.Backend == "memory" {
			a.Log.Warn("Standalone worker on the in-memory queue will never see jobs scheduled by the API")
		}
		if err := a.Start(ctx, true); err != nil {
			return err
		}
		if reconcile, _ := cmd.Flags().GetBool("reconcile"); reconcile {
			res, err := a.Services.Reminders.Reconcile(ctx)
			if err != nil {
				a.Log.Warn("Startup reconcile failed", "error", err)
			} else {
				a.Log.Info("Startup reconcile finished", "checked", res.Checked, "enqueued", res.Enqueued, "removed", res.Removed)
			}
		}
		<-ctx.Done()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(envutil.String("LOG_MODE", "development"))
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()
		pg, err := db.NewPostgresService(log)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.AutoMigrateAll(); err != nil {
			return err
		}
		log.Info("Migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the step catalog, country plans, document rules and reminder settings from YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		file, err := services.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		ctx := context.Background()
		a, err := app.New(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.Services.CatalogSeeder.Apply(ctx, file)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the command runs")

	serveCmd.Flags().Bool("no-worker", false, "do not run the reminder worker in this process")
	workerCmd.Flags().Bool("reconcile", true, "reconcile reminder rows with queued jobs on startup")
	seedCmd.Flags().StringP("file", "f", "configs/catalog.example.yaml", "catalog YAML file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
