package importer

import (
	"sync"
)

// LibraryLookup is the slice of the design library the duplicate
// checker needs. The library package implements it; keeping it an
// interface here avoids a dependency cycle and makes the checker
// trivial to test against a map.
type LibraryLookup interface {
	// FindByHash returns the design ID owning a file with this content
	// hash, or "" if none exists.
	FindByHash(contentHash string) (string, error)
	// FindByPerceptualHash returns the design ID whose stored preview
	// hash is most similar to phash at or above minSimilarity, along
	// with the similarity score. Returns "" when nothing qualifies.
	FindByPerceptualHash(phash uint64, minSimilarity int) (string, float64, error)
}

// MatchKind distinguishes how a duplicate was identified.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchNear  MatchKind = "near"
)

// Match describes a detected duplicate.
type Match struct {
	Kind       MatchKind
	DesignID   string  // existing library design, "" for in-batch hits
	BatchPath  string  // earlier file in the same run, "" for library hits
	Similarity float64 // 100 for exact matches
}

// DuplicateChecker answers "have we seen this file before", consulting
// both the persistent library and the files already processed in the
// current run. Batch state is guarded for use from parallel workers.
type DuplicateChecker struct {
	library LibraryLookup
	opts    ProcessingOptions

	mu         sync.Mutex
	seenHashes map[string]string // content hash -> first path in batch
	seenPhash  map[string]uint64 // path -> phash of accepted batch files
}

// NewDuplicateChecker creates a checker for one import run.
func NewDuplicateChecker(library LibraryLookup, opts ProcessingOptions) *DuplicateChecker {
	return &DuplicateChecker{
		library:    library,
		opts:       opts,
		seenHashes: make(map[string]string),
		seenPhash:  make(map[string]uint64),
	}
}

// Check looks the file up against the library and the current batch.
// A nil return means the file is new. Near-duplicate checking only
// runs when the file has a perceptual hash and exact-only mode is off;
// at threshold 100 only bit-identical hashes qualify, which the
// similarity metric already guarantees.
func (c *DuplicateChecker) Check(f *ScannedFile) (*Match, error) {
	if f.ContentHash != "" {
		designID, err := c.library.FindByHash(f.ContentHash)
		if err != nil {
			return nil, err
		}
		if designID != "" {
			return &Match{Kind: MatchExact, DesignID: designID, Similarity: 100}, nil
		}

		c.mu.Lock()
		prior, seen := c.seenHashes[f.ContentHash]
		c.mu.Unlock()
		if seen {
			return &Match{Kind: MatchExact, BatchPath: prior, Similarity: 100}, nil
		}
	}

	if c.opts.ExactDuplicatesOnly || !f.HasPHash {
		return nil, nil
	}

	designID, similarity, err := c.library.FindByPerceptualHash(f.PHash, c.opts.NearDuplicateThreshold)
	if err != nil {
		return nil, err
	}
	if designID != "" {
		return &Match{Kind: MatchNear, DesignID: designID, Similarity: similarity}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for path, phash := range c.seenPhash {
		score := Similarity(f.PHash, phash)
		if score >= float64(c.opts.NearDuplicateThreshold) {
			return &Match{Kind: MatchNear, BatchPath: path, Similarity: score}, nil
		}
	}
	return nil, nil
}

// Accept records a non-duplicate file so later files in the same run
// can match against it.
func (c *DuplicateChecker) Accept(f *ScannedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.ContentHash != "" {
		if _, seen := c.seenHashes[f.ContentHash]; !seen {
			c.seenHashes[f.ContentHash] = f.Path
		}
	}
	if f.HasPHash {
		c.seenPhash[f.Path] = f.PHash
	}
}
