package database

import (
	"time"
)

// Design represents one logical design in the library. A design may have
// multiple file versions; CurrentVersionID points at the active one.
type Design struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Slug             string    `gorm:"uniqueIndex;not null" json:"slug"`
	Title            string    `gorm:"not null" json:"title"`
	Description      string    `json:"description"`
	PreviewPath      string    `json:"preview_path"`
	ProjectType      string    `json:"project_type,omitempty"`
	Difficulty       string    `json:"difficulty,omitempty"`
	Style            string    `json:"style,omitempty"`
	CurrentVersionID string    `gorm:"size:36" json:"current_version_id,omitempty"`
	IsPublic         bool      `json:"is_public"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Files []DesignFile `gorm:"foreignKey:DesignID" json:"files,omitempty"`
	Tags  []Tag        `gorm:"many2many:design_tags" json:"tags,omitempty"`
}

// DesignFile represents one stored file version of a design.
// ContentHash is the exact SHA-256 of the file bytes; PreviewPhash is
// the hex-encoded perceptual hash of the preview image, when one was
// computable.
type DesignFile struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	DesignID      string    `gorm:"index;size:36;not null" json:"design_id"`
	StoragePath   string    `gorm:"not null" json:"storage_path"`
	FileType      string    `gorm:"index" json:"file_type"`
	SizeBytes     int64     `json:"size_bytes"`
	ContentHash   string    `gorm:"index;size:64;not null" json:"content_hash"`
	PreviewPhash  string    `gorm:"index;size:16" json:"preview_phash,omitempty"`
	SourcePath    string    `gorm:"index" json:"source_path"`
	VersionNumber int       `json:"version_number"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tag is a free-form label attached to designs
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
