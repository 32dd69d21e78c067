package librarymodule

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/modules/importmodule/importer"
	"github.com/ferrow/designvault/internal/utils"
)

// Ingestor turns scanned files into library records: it copies the file
// into managed storage, discovers and hashes a preview, derives basic
// metadata, and creates either a new design or a new version of one.
// It implements the import engine's per-file ingestion contract.
type Ingestor struct {
	store      *Store
	hashes     *importer.HashService
	storageDir string
	previewDir string
	eventBus   events.EventBus
}

// NewIngestor creates an ingestor writing into the given directories
func NewIngestor(store *Store, storageDir, previewDir string, bus events.EventBus) *Ingestor {
	return &Ingestor{
		store:      store,
		hashes:     importer.NewHashService(),
		storageDir: storageDir,
		previewDir: previewDir,
		eventBus:   bus,
	}
}

// IngestFile processes one file. Re-imports of a previously ingested
// source path become new versions when the content changed and no-ops
// when it did not. I/O failures are reported as transient so the runner
// retries them; a vanished source file is permanent.
func (g *Ingestor) IngestFile(ctx context.Context, f *importer.ScannedFile, project *importer.DetectedProject, opts importer.ProcessingOptions) (*importer.IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(f.Path); err != nil {
		return nil, importer.Permanent(fmt.Errorf("source file missing: %w", err))
	}

	existing, activeFile, err := g.store.FindBySourcePath(f.Path)
	if err != nil {
		return nil, importer.Transient(err)
	}
	if existing != nil && activeFile.ContentHash == f.ContentHash {
		return &importer.IngestResult{
			DesignID:      existing.ID,
			VersionNumber: activeFile.VersionNumber,
			Steps:         []string{"unchanged"},
		}, nil
	}

	title := g.deriveTitle(f, project)
	var steps []string

	// Preview before storage: a new design needs its preview path at
	// creation time.
	previewPath, phash := "", ""
	if opts.GeneratePreviews {
		previewPath, phash, err = g.capturePreview(f, title)
		if err != nil {
			return nil, err
		}
		if previewPath != "" {
			steps = append(steps, "preview")
		}
	}

	if existing != nil {
		storagePath, err := g.storeFile(f, existing.Slug, activeFile.VersionNumber+1)
		if err != nil {
			return nil, err
		}
		steps = append(steps, "store")

		version, err := g.store.AddVersion(existing.ID, NewFileRecord{
			StoragePath:  storagePath,
			FileType:     f.Extension,
			SizeBytes:    f.Size,
			ContentHash:  f.ContentHash,
			PreviewPhash: phash,
			SourcePath:   f.Path,
		})
		if err != nil {
			return nil, importer.Transient(err)
		}
		steps = append(steps, "version")

		g.publish(events.EventDesignVersioned, existing.ID, title)
		logger.Info("Added version %d to design %s (%s)", version.VersionNumber, existing.Slug, f.Path)
		return &importer.IngestResult{
			DesignID:      existing.ID,
			VersionNumber: version.VersionNumber,
			Steps:         steps,
		}, nil
	}

	storagePath, err := g.storeFile(f, utils.Slugify(title), 1)
	if err != nil {
		return nil, err
	}
	steps = append(steps, "store")

	rec := NewDesignRecord{
		Title:       title,
		PreviewPath: previewPath,
		IsPublic:    opts.AutoPublish,
	}
	if opts.GenerateAIMetadata {
		rec.Description = g.deriveDescription(f, project)
		steps = append(steps, "metadata")
	}

	design, file, err := g.store.CreateDesign(rec, NewFileRecord{
		StoragePath:  storagePath,
		FileType:     f.Extension,
		SizeBytes:    f.Size,
		ContentHash:  f.ContentHash,
		PreviewPhash: phash,
		SourcePath:   f.Path,
	})
	if err != nil {
		return nil, importer.Transient(err)
	}
	steps = append(steps, "create")

	g.publish(events.EventDesignCreated, design.ID, title)
	logger.Debug("Created design %s from %s", design.Slug, f.Path)
	return &importer.IngestResult{
		DesignID:      design.ID,
		VersionNumber: file.VersionNumber,
		Steps:         steps,
	}, nil
}

// deriveTitle prefers the detected project name for grouped files and
// falls back to a cleaned-up filename.
func (g *Ingestor) deriveTitle(f *importer.ScannedFile, project *importer.DetectedProject) string {
	if project != nil && project.Reason != importer.ReasonSingleton && project.Name != "" {
		return utils.TitleFromFilename(project.Name)
	}
	return utils.TitleFromFilename(filepath.Base(f.Path))
}

func (g *Ingestor) deriveDescription(f *importer.ScannedFile, project *importer.DetectedProject) string {
	if project != nil && len(project.Files) > 1 {
		return fmt.Sprintf("%s design with %d files (%s)",
			utils.TitleFromFilename(project.Name), len(project.Files), f.Extension)
	}
	return fmt.Sprintf("%s design imported from %s", f.Extension, filepath.Base(f.Path))
}

// capturePreview locates the file's preview image, copies it into the
// preview directory, and perceptually hashes it. A file with no preview
// is fine; a preview that exists but cannot be copied is a transient
// failure.
func (g *Ingestor) capturePreview(f *importer.ScannedFile, title string) (string, string, error) {
	source, ok := importer.FindPreview(f.Path)
	if !ok {
		// Some design formats are themselves decodable images.
		if f.HasPHash {
			return "", importer.FormatPHash(f.PHash), nil
		}
		return "", "", nil
	}

	dest := filepath.Join(g.previewDir, utils.Slugify(title)+filepath.Ext(source))
	if err := copyFile(source, dest); err != nil {
		return "", "", importer.Transient(fmt.Errorf("failed to copy preview: %w", err))
	}

	phash, ok, err := g.hashes.PerceptualHash(source)
	if err != nil || !ok {
		return dest, "", nil
	}
	return dest, importer.FormatPHash(phash), nil
}

// storeFile copies the source into managed storage under the design's
// slug. Later versions carry a version suffix so they never collide.
func (g *Ingestor) storeFile(f *importer.ScannedFile, slug string, version int) (string, error) {
	if slug == "" {
		slug = "design"
	}
	name := filepath.Base(f.Path)
	if version > 1 {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s_v%d%s", name[:len(name)-len(ext)], version, ext)
	}

	dest := filepath.Join(g.storageDir, slug, name)
	if err := copyFile(f.Path, dest); err != nil {
		return "", importer.Transient(fmt.Errorf("failed to store file: %w", err))
	}
	return dest, nil
}

func (g *Ingestor) publish(eventType events.EventType, designID, title string) {
	if g.eventBus == nil {
		return
	}
	event := events.NewSystemEvent(eventType, title, designID)
	event.Data = map[string]interface{}{"design_id": designID, "title": title}
	g.eventBus.PublishAsync(event)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
