// Package utils provides small shared helpers for file classification
// and name normalization.
package utils

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// DesignExtensions lists the file types that can be imported as designs.
// Vector and CAD formats plus the 3D printing set.
var DesignExtensions = map[string]bool{
	".svg":  true,
	".dxf":  true,
	".ai":   true,
	".eps":  true,
	".pdf":  true,
	".cdr":  true,
	".stl":  true,
	".obj":  true,
	".gltf": true,
	".glb":  true,
	".3mf":  true,
}

// ImageExtensions lists raster formats. They import as standalone designs
// and also serve as preview images for sibling design files.
var ImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// IsDesignFile checks whether a path has an importable design extension
func IsDesignFile(path string) bool {
	return DesignExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsImageFile checks whether a path has a raster image extension
func IsImageFile(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsImportable checks whether a path is a design or image file
func IsImportable(path string) bool {
	return IsDesignFile(path) || IsImageFile(path)
}

// FileType returns the lowercased extension without the leading dot
func FileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Stem returns the base filename without its extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

// Slugify converts free text to a URL-friendly slug
func Slugify(text string) string {
	slug := strings.ToLower(text)
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// TitleFromFilename derives a human-readable title from a filename:
// "celtic-knot_coaster.svg" becomes "Celtic Knot Coaster".
func TitleFromFilename(name string) string {
	stem := Stem(name)
	stem = strings.ReplaceAll(stem, "-", " ")
	stem = strings.ReplaceAll(stem, "_", " ")
	words := strings.Fields(stem)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
