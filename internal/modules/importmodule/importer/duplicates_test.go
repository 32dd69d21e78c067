package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityMetric(t *testing.T) {
	a := uint64(0xfedcba9876543210)
	b := uint64(0xfedcba9876543211) // one bit apart

	assert.Equal(t, 100.0, Similarity(a, a))
	assert.Equal(t, Similarity(a, b), Similarity(b, a), "similarity is symmetric")
	assert.InDelta(t, 100*(1-1.0/64), Similarity(a, b), 0.001)
	assert.Equal(t, 0.0, Similarity(0, ^uint64(0)))
}

func TestPHashFormatRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xdeadbeefcafef00d, ^uint64(0)} {
		parsed, err := ParsePHash(FormatPHash(v))
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
}

func TestCheckExactMatchAgainstLibrary(t *testing.T) {
	library := newStubLibrary()
	library.byHash["abc123"] = "design-1"

	checker := NewDuplicateChecker(library, DefaultOptions())
	match, err := checker.Check(&ScannedFile{Path: "/x.svg", ContentHash: "abc123"})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MatchExact, match.Kind)
	assert.Equal(t, "design-1", match.DesignID)
	assert.Equal(t, 100.0, match.Similarity)
}

func TestCheckExactMatchWithinBatch(t *testing.T) {
	checker := NewDuplicateChecker(newStubLibrary(), DefaultOptions())

	first := &ScannedFile{Path: "/a.svg", ContentHash: "samehash"}
	match, err := checker.Check(first)
	require.NoError(t, err)
	assert.Nil(t, match)
	checker.Accept(first)

	match, err = checker.Check(&ScannedFile{Path: "/b.svg", ContentHash: "samehash"})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MatchExact, match.Kind)
	assert.Equal(t, "/a.svg", match.BatchPath)
}

func TestCheckNearMatchAgainstLibrary(t *testing.T) {
	library := newStubLibrary()
	base := uint64(0xfedcba9876543210)
	library.byPhash[base] = "design-7"

	opts := DefaultOptions()
	opts.NearDuplicateThreshold = 90

	checker := NewDuplicateChecker(library, opts)
	nearHash := base ^ 0x3 // two bits apart, ~96.9% similar
	match, err := checker.Check(&ScannedFile{Path: "/x.svg", ContentHash: "new", PHash: nearHash, HasPHash: true})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MatchNear, match.Kind)
	assert.Equal(t, "design-7", match.DesignID)
	assert.Greater(t, match.Similarity, 90.0)
}

func TestCheckNearMatchWithinBatch(t *testing.T) {
	checker := NewDuplicateChecker(newStubLibrary(), DefaultOptions())

	base := uint64(0x1122334455667788)
	first := &ScannedFile{Path: "/a.svg", ContentHash: "hash-a", PHash: base, HasPHash: true}
	checker.Accept(first)

	match, err := checker.Check(&ScannedFile{Path: "/b.svg", ContentHash: "hash-b", PHash: base ^ 0x1, HasPHash: true})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MatchNear, match.Kind)
	assert.Equal(t, "/a.svg", match.BatchPath)
}

func TestExactOnlyDisablesNearChecking(t *testing.T) {
	library := newStubLibrary()
	base := uint64(0xfedcba9876543210)
	library.byPhash[base] = "design-7"

	opts := DefaultOptions()
	opts.ExactDuplicatesOnly = true

	checker := NewDuplicateChecker(library, opts)
	match, err := checker.Check(&ScannedFile{Path: "/x.svg", ContentHash: "new", PHash: base, HasPHash: true})
	require.NoError(t, err)
	assert.Nil(t, match, "exact-only mode must never report near duplicates")
}

func TestThresholdHundredMatchesOnlyIdenticalHashes(t *testing.T) {
	library := newStubLibrary()
	base := uint64(0xfedcba9876543210)
	library.byPhash[base] = "design-7"

	opts := DefaultOptions()
	opts.NearDuplicateThreshold = 100
	checker := NewDuplicateChecker(library, opts)

	match, err := checker.Check(&ScannedFile{Path: "/x.svg", ContentHash: "h1", PHash: base ^ 0x1, HasPHash: true})
	require.NoError(t, err)
	assert.Nil(t, match, "one bit of distance must not match at threshold 100")

	match, err = checker.Check(&ScannedFile{Path: "/y.svg", ContentHash: "h2", PHash: base, HasPHash: true})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 100.0, match.Similarity)
}

func TestCheckSkipsFilesWithoutPerceptualHash(t *testing.T) {
	library := newStubLibrary()
	library.byPhash[0xabc] = "design-9"

	checker := NewDuplicateChecker(library, DefaultOptions())
	match, err := checker.Check(&ScannedFile{Path: "/x.dxf", ContentHash: "fresh"})
	require.NoError(t, err)
	assert.Nil(t, match)
}
