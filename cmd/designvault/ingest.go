package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrow/designvault/internal/config"
	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/modules/importmodule/importer"
	"github.com/ferrow/designvault/internal/modules/librarymodule"
)

func newIngestCmd() *cobra.Command {
	opts := importer.DefaultOptions()
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "ingest <directory>",
		Short: "Import a directory of design files into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			if err := database.Initialize(); err != nil {
				return fmt.Errorf("database initialization failed: %w", err)
			}

			db := database.GetDB()
			if err := db.AutoMigrate(
				&database.Design{}, &database.DesignFile{}, &database.Tag{},
				&database.ImportJob{}, &database.ImportLog{},
			); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			bus := events.NewEventBus(events.DefaultEventBusConfig())
			if err := bus.Start(cmd.Context()); err != nil {
				return err
			}
			defer bus.Stop(context.Background())

			cfg := config.Get()
			store := librarymodule.NewStore(db, cfg.Library.PhashChunkSize)
			ingestor := librarymodule.NewIngestor(store, cfg.Library.StorageDir, cfg.Library.PreviewDir, bus)
			manager := importer.NewManager(db, bus, store, ingestor,
				cfg.Import.MaxActiveJobs, cfg.Import.RetryBaseDelay)

			if dryRun {
				return printPreview(manager, args[0], opts)
			}
			return runIngest(cmd.Context(), manager, store, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Scan and show detected projects without importing")
	cmd.Flags().BoolVar(&opts.ExactDuplicatesOnly, "exact-only", opts.ExactDuplicatesOnly, "Only treat bit-identical files as duplicates")
	cmd.Flags().BoolVar(&opts.AutoPublish, "publish", opts.AutoPublish, "Mark imported designs public")
	cmd.Flags().IntVar(&opts.NearDuplicateThreshold, "threshold", opts.NearDuplicateThreshold, "Near-duplicate similarity threshold (70-100)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", opts.Concurrency, "Parallel files in flight (1-20)")
	return cmd
}

func printPreview(manager *importer.Manager, sourcePath string, opts importer.ProcessingOptions) error {
	scan, projects, err := manager.Preview(sourcePath, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %s: %d files (%d bytes), %d unreadable entries\n",
		scan.RootPath, len(scan.Files), scan.TotalSize, len(scan.Errors))
	for _, p := range projects {
		fmt.Printf("  %-40s %d files  %-22s confidence %.2f\n",
			p.Name, len(p.Files), p.Reason, p.Confidence)
	}
	return nil
}

func runIngest(ctx context.Context, manager *importer.Manager, store *librarymodule.Store, sourcePath string, opts importer.ProcessingOptions) error {
	job, err := manager.CreateJob(sourcePath, opts, nil)
	if err != nil {
		return err
	}
	if err := manager.StartJob(job.ID); err != nil {
		return err
	}
	fmt.Printf("Import job %d started (%d files)\n", job.ID, job.FilesTotal)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			// First interrupt pauses the job cleanly; the checkpoint
			// lets a later run resume where this one stopped.
			ctxDone = nil
			fmt.Println("Interrupt received, pausing job...")
			if err := manager.PauseJob(job.ID); err != nil {
				return err
			}
		case <-ticker.C:
		}

		current, err := manager.Store().GetJob(job.ID)
		if err != nil {
			return err
		}
		status := importer.JobStatus(current.Status)
		if !status.Terminal() && status != importer.StatusPaused {
			continue
		}

		fmt.Printf("\nJob %d %s: %d succeeded, %d duplicate, %d failed, %d skipped (of %d)\n",
			current.ID, current.Status,
			current.FilesSucceeded, current.FilesDuplicate,
			current.FilesFailed, current.FilesSkipped, current.FilesTotal)

		reasons, err := manager.Store().SummarizeReasons(job.ID)
		if err == nil && len(reasons) > 0 {
			fmt.Println("Outcomes by reason:")
			for _, r := range reasons {
				reason := r.Reason
				if reason == "" {
					reason = "-"
				}
				fmt.Printf("  %-10s %-50s %d\n", r.Status, reason, r.Count)
			}
		}

		if stats, err := store.GetStats(); err == nil {
			fmt.Printf("Library now holds %d designs, %d files, %d superseded versions\n",
				stats.Designs, stats.Files, stats.Versions)
		}

		if status == importer.StatusFailed {
			return fmt.Errorf("import job %d failed: %s", current.ID, current.ErrorMessage)
		}
		return nil
	}
}
