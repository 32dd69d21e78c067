package importer

import (
	"os"
	"path/filepath"

	"github.com/ferrow/designvault/internal/utils"
)

// previewExtensions in lookup order
var previewExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// FindPreview locates an existing preview image for a design file,
// checking the naming conventions sources commonly use: same stem,
// "_preview"/"-preview" suffixes, and a previews/ subdirectory.
func FindPreview(designPath string) (string, bool) {
	stem := utils.Stem(designPath)
	parent := filepath.Dir(designPath)

	for _, ext := range previewExtensions {
		candidates := []string{
			filepath.Join(parent, stem+ext),
			filepath.Join(parent, stem+"_preview"+ext),
			filepath.Join(parent, stem+"-preview"+ext),
			filepath.Join(parent, "previews", stem+ext),
		}
		for _, candidate := range candidates {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}

	return "", false
}
