// Package filter decides which remote files are admitted for download.
//
// The [Engine] is built once from configuration and is read-only afterwards, so a single value can be shared by
// every goroutine of a sync pass.
package filter

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertthunder/cvsync/internal/shared"
)

const bytesPerMB = 1024 * 1024

// Default limits, used when the configured value is zero or negative.
const (
	DefaultMaxSizeMB    = 50.0
	DefaultPDFMaxSizeMB = 30.0
)

// Approved is the reason returned for admitted items.
const Approved = "Approved"

var videoExts = []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".flv", ".wmv", ".m4v", ".mpeg", ".mpg"}

var ebookExts = []string{".epub", ".mobi"}

// DefaultSkipPatterns are filename phrases that mark a file as a textbook or a recording.
var DefaultSkipPatterns = []string{"textbook", "ebook", "full book", "recording", "lecture recording", "video lecture"}

// DefaultBlacklist returns the default extension blacklist: every video type plus the ebook types.
func DefaultBlacklist() []string {
	return slices.Concat(videoExts, ebookExts)
}

// Item is the metadata the engine evaluates. MimeHint is carried for logging and not matched.
type Item struct {
	Name     string
	Size     int64
	MimeHint string
}

// Rules configures an [Engine].
type Rules struct {
	MaxSizeMB    float64
	PDFMaxSizeMB float64
	Blacklist    []string
	SkipPatterns []string
}

// RulesFromConfig reads the download size ceiling and the filter section of the configuration.
func RulesFromConfig(cfg *shared.Config) Rules {
	return Rules{
		MaxSizeMB:    cfg.Download.MaxFileSizeMB,
		PDFMaxSizeMB: cfg.Filters.PDFMaxSizeMB,
		Blacklist:    cfg.Filters.ExtensionBlacklist,
		SkipPatterns: cfg.Filters.NamePatternsToSkip,
	}
}

// Engine evaluates admission rules in a fixed order: size, blacklist, name pattern, large PDF.
type Engine struct {
	maxSize   int64
	pdfMax    int64
	blacklist map[string]struct{}
	patterns  []string
}

// Stats describes the effective configuration of an [Engine].
type Stats struct {
	MaxSizeMB    float64
	PDFMaxSizeMB float64
	Blacklist    []string
	SkipPatterns []string
}

// New creates an [Engine]. Extensions are lowercased and given a leading dot; patterns are lowercased and blank
// patterns dropped.
func New(r Rules) *Engine {
	maxMB, pdfMB := r.MaxSizeMB, r.PDFMaxSizeMB
	if maxMB <= 0 {
		maxMB = DefaultMaxSizeMB
	}
	if pdfMB <= 0 {
		pdfMB = DefaultPDFMaxSizeMB
	}

	e := &Engine{
		maxSize:   int64(maxMB * bytesPerMB),
		pdfMax:    int64(pdfMB * bytesPerMB),
		blacklist: make(map[string]struct{}, len(r.Blacklist)),
	}

	for _, ext := range r.Blacklist {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.blacklist[ext] = struct{}{}
	}

	for _, p := range r.SkipPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			e.patterns = append(e.patterns, p)
		}
	}
	return e
}

// Decide reports whether item is admitted and why. The first matching rule wins.
func (e *Engine) Decide(item Item) (bool, string) {
	ext := strings.ToLower(filepath.Ext(item.Name))

	if item.Size > e.maxSize {
		return false, fmt.Sprintf("Exceeds size limit (%.1f MB > %.0f MB)", toMB(item.Size), toMB(e.maxSize))
	}

	if _, ok := e.blacklist[ext]; ok {
		return false, fmt.Sprintf("%s (%s) - blacklisted file type", category(ext), ext)
	}

	lower := strings.ToLower(item.Name)
	for _, p := range e.patterns {
		if strings.Contains(lower, p) {
			return false, fmt.Sprintf("Filename matches skip pattern: '%s'", p)
		}
	}

	if ext == ".pdf" && item.Size > e.pdfMax {
		return false, fmt.Sprintf("Large PDF (%.1f MB) - likely textbook", toMB(item.Size))
	}

	return true, Approved
}

// Stats returns the effective rules with the blacklist sorted.
func (e *Engine) Stats() Stats {
	exts := make([]string, 0, len(e.blacklist))
	for ext := range e.blacklist {
		exts = append(exts, ext)
	}
	slices.Sort(exts)

	return Stats{
		MaxSizeMB:    toMB(e.maxSize),
		PDFMaxSizeMB: toMB(e.pdfMax),
		Blacklist:    exts,
		SkipPatterns: slices.Clone(e.patterns),
	}
}

func category(ext string) string {
	switch {
	case slices.Contains(videoExts, ext):
		return "Video file"
	case slices.Contains(ebookExts, ext):
		return "Ebook"
	default:
		return "File"
	}
}

func toMB(n int64) float64 {
	return float64(n) / bytesPerMB
}
