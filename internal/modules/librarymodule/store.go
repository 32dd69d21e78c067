package librarymodule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/modules/importmodule/importer"
	"github.com/ferrow/designvault/internal/utils"
)

// Store wraps all library persistence: designs, file versions, tags,
// and the hash lookups the import engine needs.
type Store struct {
	db             *gorm.DB
	phashChunkSize int
}

// NewStore creates a library store. phashChunkSize bounds how many file
// rows a perceptual-hash search loads per page.
func NewStore(db *gorm.DB, phashChunkSize int) *Store {
	if phashChunkSize <= 0 {
		phashChunkSize = 1000
	}
	return &Store{db: db, phashChunkSize: phashChunkSize}
}

// FindByHash returns the design owning an active file with this exact
// content hash, or "" if the library has never seen these bytes.
func (s *Store) FindByHash(contentHash string) (string, error) {
	var file database.DesignFile
	err := s.db.Where("content_hash = ? AND is_active = ?", contentHash, true).First(&file).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return file.DesignID, nil
}

// FindByPerceptualHash scans stored preview hashes for the closest
// match at or above minSimilarity. Hamming comparison happens in Go, so
// rows are paged through in chunks rather than loaded wholesale.
func (s *Store) FindByPerceptualHash(phash uint64, minSimilarity int) (string, float64, error) {
	bestID := ""
	bestScore := 0.0

	for offset := 0; ; offset += s.phashChunkSize {
		var files []database.DesignFile
		err := s.db.Select("design_id, preview_phash").
			Where("preview_phash <> '' AND is_active = ?", true).
			Order("id ASC").
			Limit(s.phashChunkSize).Offset(offset).
			Find(&files).Error
		if err != nil {
			return "", 0, err
		}
		if len(files) == 0 {
			break
		}

		for _, f := range files {
			stored, err := importer.ParsePHash(f.PreviewPhash)
			if err != nil {
				continue
			}
			score := importer.Similarity(phash, stored)
			if score >= float64(minSimilarity) && score > bestScore {
				bestID = f.DesignID
				bestScore = score
			}
		}
		if len(files) < s.phashChunkSize {
			break
		}
	}
	return bestID, bestScore, nil
}

// FindBySourcePath returns the design whose active file version came
// from this source path, used for version tracking on re-import.
func (s *Store) FindBySourcePath(sourcePath string) (*database.Design, *database.DesignFile, error) {
	var file database.DesignFile
	err := s.db.Where("source_path = ? AND is_active = ?", sourcePath, true).First(&file).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var design database.Design
	if err := s.db.First(&design, "id = ?", file.DesignID).Error; err != nil {
		return nil, nil, err
	}
	return &design, &file, nil
}

// GetDesign loads a design with its files and tags
func (s *Store) GetDesign(id string) (*database.Design, error) {
	var design database.Design
	err := s.db.Preload("Files").Preload("Tags").First(&design, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &design, nil
}

// ListDesigns returns designs newest-first with pagination
func (s *Store) ListDesigns(limit, offset int) ([]database.Design, int64, error) {
	var total int64
	if err := s.db.Model(&database.Design{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var designs []database.Design
	err := s.db.Preload("Tags").Order("created_at DESC").Limit(limit).Offset(offset).Find(&designs).Error
	return designs, total, err
}

// NewDesignRecord describes a design to create
type NewDesignRecord struct {
	Title       string
	Description string
	PreviewPath string
	IsPublic    bool
	Tags        []string
}

// NewFileRecord describes a file version to attach
type NewFileRecord struct {
	StoragePath  string
	FileType     string
	SizeBytes    int64
	ContentHash  string
	PreviewPhash string
	SourcePath   string
}

// CreateDesign inserts a design with its first file version. The slug
// is derived from the title and suffixed until unique.
func (s *Store) CreateDesign(rec NewDesignRecord, file NewFileRecord) (*database.Design, *database.DesignFile, error) {
	design := &database.Design{
		ID:          uuid.NewString(),
		Title:       rec.Title,
		Description: rec.Description,
		PreviewPath: rec.PreviewPath,
		IsPublic:    rec.IsPublic,
	}
	fileRow := &database.DesignFile{
		ID:            uuid.NewString(),
		DesignID:      design.ID,
		StoragePath:   file.StoragePath,
		FileType:      file.FileType,
		SizeBytes:     file.SizeBytes,
		ContentHash:   file.ContentHash,
		PreviewPhash:  file.PreviewPhash,
		SourcePath:    file.SourcePath,
		VersionNumber: 1,
		IsActive:      true,
	}
	design.CurrentVersionID = fileRow.ID

	err := s.db.Transaction(func(tx *gorm.DB) error {
		slug, err := s.uniqueSlug(tx, rec.Title)
		if err != nil {
			return err
		}
		design.Slug = slug

		if err := tx.Create(design).Error; err != nil {
			return fmt.Errorf("failed to create design: %w", err)
		}
		if err := tx.Create(fileRow).Error; err != nil {
			return fmt.Errorf("failed to create design file: %w", err)
		}
		return s.attachTags(tx, design, rec.Tags)
	})
	if err != nil {
		return nil, nil, err
	}
	return design, fileRow, nil
}

// AddVersion attaches a new file version to an existing design,
// deactivating prior versions and flipping the current-version pointer.
func (s *Store) AddVersion(designID string, file NewFileRecord) (*database.DesignFile, error) {
	fileRow := &database.DesignFile{
		ID:           uuid.NewString(),
		DesignID:     designID,
		StoragePath:  file.StoragePath,
		FileType:     file.FileType,
		SizeBytes:    file.SizeBytes,
		ContentHash:  file.ContentHash,
		PreviewPhash: file.PreviewPhash,
		SourcePath:   file.SourcePath,
		IsActive:     true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&database.DesignFile{}).
			Where("design_id = ?", designID).
			Select("COALESCE(MAX(version_number), 0)").Scan(&maxVersion).Error; err != nil {
			return err
		}
		fileRow.VersionNumber = maxVersion + 1

		if err := tx.Model(&database.DesignFile{}).
			Where("design_id = ? AND is_active = ?", designID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if err := tx.Create(fileRow).Error; err != nil {
			return fmt.Errorf("failed to create design file version: %w", err)
		}
		return tx.Model(&database.Design{}).Where("id = ?", designID).Updates(map[string]interface{}{
			"current_version_id": fileRow.ID,
			"updated_at":         time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return fileRow, nil
}

// uniqueSlug slugifies a title and appends -2, -3, ... until no
// existing design claims it.
func (s *Store) uniqueSlug(tx *gorm.DB, title string) (string, error) {
	base := utils.Slugify(title)
	if base == "" {
		base = "design"
	}

	slug := base
	for i := 2; ; i++ {
		var count int64
		if err := tx.Model(&database.Design{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *Store) attachTags(tx *gorm.DB, design *database.Design, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		var tag database.Tag
		if err := tx.Where("name = ?", name).FirstOrCreate(&tag, database.Tag{Name: name}).Error; err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", name, err)
		}
		if err := tx.Model(design).Association("Tags").Append(&tag); err != nil {
			return fmt.Errorf("failed to attach tag %q: %w", name, err)
		}
	}
	return nil
}

// Stats summarizes library contents for the ingest CLI summary
type Stats struct {
	Designs  int64 `json:"designs"`
	Files    int64 `json:"files"`
	Versions int64 `json:"versions"`
}

// GetStats counts designs, active files, and superseded versions
func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	if err := s.db.Model(&database.Design{}).Count(&stats.Designs).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&database.DesignFile{}).Where("is_active = ?", true).Count(&stats.Files).Error; err != nil {
		return stats, err
	}
	err := s.db.Model(&database.DesignFile{}).Where("is_active = ?", false).Count(&stats.Versions).Error
	return stats, err
}
