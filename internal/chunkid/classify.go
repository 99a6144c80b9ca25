package chunkid

import (
	"errors"
	"path/filepath"
	"strings"
)

// Classification describes how a local path's content should be chunked.
type Classification int

const (
	// Unlisted paths are not eligible for chunking at all.
	Unlisted Classification = iota
	Text
	Binary
)

// String implements fmt.Stringer.
func (c Classification) String() string {
	switch c {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unlisted"
	}
}

// ErrUnlistedFileFormat is returned when a path is asked to be chunked but
// its Classification is Unlisted. The indexer must never route such a path
// to the chunker; seeing this error indicates configuration drift between
// the indexer's walk filter and the chunker's classifier.
var ErrUnlistedFileFormat = errors.New("chunkid: unlisted file format")

// Classifier decides the Classification of a path by extension and by a
// small set of bare-filename exceptions. It is a seam: the exact table is
// configuration, not a hard-coded constant (spec §6).
type Classifier struct {
	// TextExtensions and BinaryExtensions are matched case-insensitively,
	// without the leading dot (e.g. "cook", "yaml").
	TextExtensions   map[string]struct{}
	BinaryExtensions map[string]struct{}

	// TextFilenames holds exact, case-sensitive bare filenames (no
	// extension match needed) that are always classified as text, e.g.
	// ".shopping-list".
	TextFilenames map[string]struct{}
}

// DefaultClassifier returns the classifier matching spec §6's default
// eligibility table.
func DefaultClassifier() *Classifier {
	return &Classifier{
		TextExtensions:   toSet("cook", "conf", "yaml", "yml", "md", "menu", "jinja", "j2"),
		BinaryExtensions: toSet("jpg", "jpeg", "png"),
		TextFilenames:    toSet(".shopping-list", ".shopping-checked", ".bookmarks"),
	}
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Classify returns the Classification for a tenant-relative or absolute
// path based on its base filename.
func (c *Classifier) Classify(path string) Classification {
	base := filepath.Base(path)

	if _, ok := c.TextFilenames[base]; ok {
		return Text
	}

	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	ext = strings.ToLower(ext)
	if ext == "" {
		return Unlisted
	}

	if _, ok := c.TextExtensions[ext]; ok {
		return Text
	}
	if _, ok := c.BinaryExtensions[ext]; ok {
		return Binary
	}
	return Unlisted
}

// Eligible reports whether path should be walked into the registry by the
// indexer (text or binary, i.e. not Unlisted).
func (c *Classifier) Eligible(path string) bool {
	return c.Classify(path) != Unlisted
}
