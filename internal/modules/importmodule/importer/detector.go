package importer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/ferrow/designvault/internal/utils"
)

// Detector groups scanned files into logical projects. Detection runs
// four passes in order, each consuming the files it claims:
//
//  1. variant groups: same directory, same stem, different extension
//  2. folder groups: directories whose files share a dominant stem
//  3. cross-folder groups: same stem spread across sibling folders that
//     are named after file types ("svg/", "dxf/", ...)
//  4. singletons: everything left becomes its own project
//
// The passes are pure functions of the scan result, so repeated runs
// over the same tree always produce the same grouping.
type Detector struct {
	opts ProcessingOptions
}

// NewDetector creates a detector using the given options.
func NewDetector(opts ProcessingOptions) *Detector {
	return &Detector{opts: opts}
}

// Detect partitions the scanned files into projects. Every input file
// appears in exactly one returned project.
func (d *Detector) Detect(scan *ScanResult) []DetectedProject {
	remaining := make([]ScannedFile, len(scan.Files))
	copy(remaining, scan.Files)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Path < remaining[j].Path })

	var projects []DetectedProject

	if d.opts.EnableProjectDetection {
		var variants, folders []DetectedProject
		variants, remaining = d.detectVariantGroups(remaining)
		projects = append(projects, variants...)

		folders, remaining = d.detectFolderGroups(remaining)
		projects = append(projects, folders...)

		if d.opts.CrossFolderDetection {
			var cross []DetectedProject
			cross, remaining = d.detectCrossFolderGroups(remaining)
			projects = append(projects, cross...)
		}
	}

	for _, f := range remaining {
		projects = append(projects, DetectedProject{
			Name:       utils.Stem(f.Path),
			Files:      []ScannedFile{f},
			Primary:    f,
			Reason:     ReasonSingleton,
			Confidence: 1.0,
		})
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Files[0].Path < projects[j].Files[0].Path
	})
	return projects
}

// detectVariantGroups claims files that share a directory and a
// case-insensitive stem but differ in extension. These are near-certain
// exports of the same design, so confidence is always 1.0.
func (d *Detector) detectVariantGroups(files []ScannedFile) ([]DetectedProject, []ScannedFile) {
	type key struct {
		dir  string
		stem string
	}
	groups := make(map[key][]ScannedFile)
	var order []key
	for _, f := range files {
		k := key{dir: filepath.Dir(f.Path), stem: strings.ToLower(utils.Stem(f.Path))}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	var projects []DetectedProject
	var leftover []ScannedFile
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 || !hasDistinctExtensions(group) {
			leftover = append(leftover, group...)
			continue
		}
		projects = append(projects, DetectedProject{
			Name:       utils.Stem(group[0].Path),
			Files:      group,
			Primary:    d.electPrimary(group),
			Reason:     ReasonVariant,
			Confidence: 1.0,
		})
	}
	sort.Slice(leftover, func(i, j int) bool { return leftover[i].Path < leftover[j].Path })
	return projects, leftover
}

// detectFolderGroups claims directories whose remaining files cluster
// around a single dominant stem. Confidence is the fraction of files
// sharing the modal stem; folders below the configured confidence
// threshold are left for later passes.
func (d *Detector) detectFolderGroups(files []ScannedFile) ([]DetectedProject, []ScannedFile) {
	byDir := make(map[string][]ScannedFile)
	var order []string
	for _, f := range files {
		dir := filepath.Dir(f.Path)
		if _, seen := byDir[dir]; !seen {
			order = append(order, dir)
		}
		byDir[dir] = append(byDir[dir], f)
	}

	var projects []DetectedProject
	var leftover []ScannedFile
	for _, dir := range order {
		group := byDir[dir]
		if len(group) < 2 {
			leftover = append(leftover, group...)
			continue
		}

		confidence := modalStemFraction(group)
		if confidence < d.opts.ProjectConfidenceThreshold {
			leftover = append(leftover, group...)
			continue
		}
		projects = append(projects, DetectedProject{
			Name:       filepath.Base(dir),
			Files:      group,
			Primary:    d.electPrimary(group),
			Reason:     ReasonFolder,
			Confidence: confidence,
		})
	}
	sort.Slice(leftover, func(i, j int) bool { return leftover[i].Path < leftover[j].Path })
	return projects, leftover
}

// detectCrossFolderGroups claims files sharing a stem across sibling
// directories that are named after file types, the common
// "svg/widget.svg + dxf/widget.dxf" export layout. Confidence starts at
// 0.9 and drops 0.1 for each member whose extension does not match its
// folder's name.
func (d *Detector) detectCrossFolderGroups(files []ScannedFile) ([]DetectedProject, []ScannedFile) {
	type key struct {
		parent string
		stem   string
	}
	groups := make(map[key][]ScannedFile)
	var order []key
	var leftover []ScannedFile

	for _, f := range files {
		dir := filepath.Dir(f.Path)
		if !isTypeNamedFolder(filepath.Base(dir)) {
			leftover = append(leftover, f)
			continue
		}
		k := key{parent: filepath.Dir(dir), stem: strings.ToLower(utils.Stem(f.Path))}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	var projects []DetectedProject
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			leftover = append(leftover, group...)
			continue
		}

		confidence := 0.9
		for _, f := range group {
			if !strings.EqualFold(filepath.Base(filepath.Dir(f.Path)), f.Extension) {
				confidence -= 0.1
			}
		}
		if confidence < d.opts.ProjectConfidenceThreshold {
			leftover = append(leftover, group...)
			continue
		}
		projects = append(projects, DetectedProject{
			Name:       utils.Stem(group[0].Path),
			Files:      group,
			Primary:    d.electPrimary(group),
			Reason:     ReasonCrossFolder,
			Confidence: confidence,
		})
	}
	sort.Slice(leftover, func(i, j int) bool { return leftover[i].Path < leftover[j].Path })
	return projects, leftover
}

// electPrimary picks the representative file of a group: the file whose
// extension ranks highest in the configured preview priority, breaking
// ties by size (largest wins) and then path.
func (d *Detector) electPrimary(group []ScannedFile) ScannedFile {
	best := group[0]
	bestRank := d.priorityRank(best.Extension)
	for _, f := range group[1:] {
		rank := d.priorityRank(f.Extension)
		switch {
		case rank < bestRank:
			best, bestRank = f, rank
		case rank == bestRank && f.Size > best.Size:
			best = f
		case rank == bestRank && f.Size == best.Size && f.Path < best.Path:
			best = f
		}
	}
	return best
}

func (d *Detector) priorityRank(ext string) int {
	for i, p := range d.opts.PreviewTypePriority {
		if strings.EqualFold(p, ext) {
			return i
		}
	}
	return len(d.opts.PreviewTypePriority)
}

func hasDistinctExtensions(group []ScannedFile) bool {
	first := group[0].Extension
	for _, f := range group[1:] {
		if f.Extension != first {
			return true
		}
	}
	return false
}

// modalStemFraction returns the share of files carrying the most common
// case-insensitive stem in the group.
func modalStemFraction(group []ScannedFile) float64 {
	counts := make(map[string]int)
	for _, f := range group {
		counts[strings.ToLower(utils.Stem(f.Path))]++
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return float64(max) / float64(len(group))
}

// isTypeNamedFolder reports whether a directory name is itself a known
// file type, e.g. "svg" or "previews" layouts produced by exporters.
func isTypeNamedFolder(name string) bool {
	n := strings.ToLower(name)
	if _, ok := utils.DesignExtensions["."+n]; ok {
		return true
	}
	_, ok := utils.ImageExtensions["."+n]
	return ok
}
