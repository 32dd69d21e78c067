package importer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/utils"
)

// Scanner walks a source directory and enumerates importable files.
// Unreadable entries are recorded and skipped; a scan never aborts
// because of one bad path.
type Scanner struct {
	hashes *HashService
}

// NewScanner creates a scanner
func NewScanner() *Scanner {
	return &Scanner{hashes: NewHashService()}
}

// Scan walks rootPath recursively. When computeHashes is false (the
// interactive preview default) hashing is deferred to the execution
// phase to keep the scan fast. Files come back in walk order, which is
// lexical and therefore stable across runs.
func (s *Scanner) Scan(rootPath string, computeHashes bool) (*ScanResult, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("source path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", rootPath)
	}

	result := &ScanResult{
		RootPath:       rootPath,
		FileTypeCounts: make(map[string]int),
	}

	walkErr := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, ScanError{Path: path, Message: err.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !utils.IsImportable(path) {
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, ScanError{Path: path, Message: err.Error()})
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			relPath = path
		}

		scanned := ScannedFile{
			Path:      path,
			RelPath:   relPath,
			Size:      fileInfo.Size(),
			Extension: utils.FileType(path),
		}

		if computeHashes {
			if err := s.HydrateHashes(&scanned); err != nil {
				result.Errors = append(result.Errors, ScanError{Path: path, Message: err.Error()})
				return nil
			}
		}

		result.Files = append(result.Files, scanned)
		result.TotalSize += fileInfo.Size()
		result.FileTypeCounts[scanned.Extension]++
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan failed: %w", walkErr)
	}

	logger.Debug("Scanned %s: %d files, %d bytes, %d errors",
		rootPath, len(result.Files), result.TotalSize, len(result.Errors))

	return result, nil
}

// HydrateHashes fills in the content hash and, when computable, the
// perceptual hash of a scanned file. Idempotent; already-hashed files
// are left alone.
func (s *Scanner) HydrateHashes(f *ScannedFile) error {
	if f.ContentHash == "" {
		hash, err := s.hashes.ContentHash(f.Path)
		if err != nil {
			return err
		}
		f.ContentHash = hash
	}

	if !f.HasPHash {
		phash, ok, err := s.hashes.FilePHash(f.Path)
		if err != nil {
			// A broken preview image should not fail the file itself;
			// it only disables near-duplicate checking.
			logger.Warn("Could not compute perceptual hash for %s: %v", f.Path, err)
			return nil
		}
		f.PHash = phash
		f.HasPHash = ok
	}
	return nil
}
