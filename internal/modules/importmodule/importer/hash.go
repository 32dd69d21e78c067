package importer

import (
	"crypto/sha256"
	"fmt"
	"image"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/corona10/goimagehash"
)

// PHashBits is the width of the perceptual hash. Similarity is computed
// over this many bits.
const PHashBits = 64

// HashService computes exact content hashes and perceptual hashes for
// files. It is stateless; methods are pure functions over file bytes.
type HashService struct{}

// NewHashService creates a hash service
func NewHashService() *HashService {
	return &HashService{}
}

// ContentHash computes the SHA-256 of a file's bytes, streamed
func (h *HashService) ContentHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// PerceptualHash computes the 64-bit pHash of an image file. The second
// return value is false when the format is not decodable; that is not
// an error, it just means near-duplicate checking is unavailable for
// this file.
func (h *HashService) PerceptualHash(path string) (uint64, bool, error) {
	ext := strings.ToLower(filepath.Ext(path))

	file, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer file.Close()

	var img image.Image
	switch ext {
	case ".png", ".jpg", ".jpeg":
		img, _, err = image.Decode(file)
	case ".webp":
		img, err = webp.Decode(file)
	default:
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, false, fmt.Errorf("failed to compute perceptual hash for %s: %w", path, err)
	}

	return phash.GetHash(), true, nil
}

// FilePHash resolves the perceptual hash for any scanned file: images
// hash directly, other formats hash their discovered preview image.
// Files with neither are reported as not computable.
func (h *HashService) FilePHash(path string) (uint64, bool, error) {
	if phash, ok, err := h.PerceptualHash(path); err != nil || ok {
		return phash, ok, err
	}

	preview, found := FindPreview(path)
	if !found {
		return 0, false, nil
	}
	return h.PerceptualHash(preview)
}

// Similarity converts the Hamming distance between two perceptual
// hashes into a percentage. Symmetric by construction, and 100 only for
// bit-identical hashes.
func Similarity(a, b uint64) float64 {
	distance := bits.OnesCount64(a ^ b)
	return 100 * (1 - float64(distance)/float64(PHashBits))
}

// FormatPHash renders a perceptual hash for storage
func FormatPHash(phash uint64) string {
	return fmt.Sprintf("%016x", phash)
}

// ParsePHash reads a stored perceptual hash
func ParsePHash(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
