package filter

import (
	"strings"
	"testing"

	"github.com/desertthunder/cvsync/internal/shared"
)

const mb = 1024 * 1024

func defaultEngine() *Engine {
	return New(Rules{
		MaxSizeMB:    50,
		PDFMaxSizeMB: 30,
		Blacklist:    DefaultBlacklist(),
		SkipPatterns: DefaultSkipPatterns,
	})
}

func TestDecide(t *testing.T) {
	e := defaultEngine()

	tests := []struct {
		name   string
		item   Item
		admit  bool
		reason string
	}{
		{"small pdf", Item{Name: "Lecture 1.pdf", Size: 1 * mb}, true, "Approved"},
		{"oversize", Item{Name: "dataset.zip", Size: 60 * mb}, false, "Exceeds size limit (60.0 MB > 50 MB)"},
		{"video", Item{Name: "intro.MP4", Size: 5 * mb}, false, "Video file (.mp4) - blacklisted file type"},
		{"ebook", Item{Name: "novel.epub", Size: mb}, false, "Ebook (.epub) - blacklisted file type"},
		{"pattern", Item{Name: "Week 3 Textbook Chapter.docx", Size: mb}, false, "Filename matches skip pattern: 'textbook'"},
		{"large pdf", Item{Name: "reader.pdf", Size: 35 * mb}, false, "Large PDF (35.0 MB) - likely textbook"},
		{"pdf at ceiling", Item{Name: "notes.pdf", Size: 30 * mb}, true, "Approved"},
		{"no extension", Item{Name: "README", Size: 10}, true, "Approved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admit, reason := e.Decide(tt.item)
			if admit != tt.admit {
				t.Errorf("expected admit %v, got %v", tt.admit, admit)
			}
			if reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, reason)
			}
		})
	}
}

func TestDecidePrecedence(t *testing.T) {
	t.Run("size before blacklist", func(t *testing.T) {
		e := New(Rules{MaxSizeMB: 10, Blacklist: DefaultBlacklist(), SkipPatterns: DefaultSkipPatterns})

		admit, reason := e.Decide(Item{Name: "recording.mp4", Size: 20 * mb, MimeHint: "video"})
		if admit {
			t.Fatal("expected rejection")
		}
		if !strings.HasPrefix(reason, "Exceeds size limit") {
			t.Errorf("expected size reason, got %q", reason)
		}
		if reason != "Exceeds size limit (20.0 MB > 10 MB)" {
			t.Errorf("unexpected reason text %q", reason)
		}
	})

	t.Run("blacklist before pattern", func(t *testing.T) {
		admit, reason := defaultEngine().Decide(Item{Name: "lecture recording.mov", Size: mb})
		if admit || !strings.Contains(reason, "blacklisted") {
			t.Errorf("expected blacklist reason, got %q", reason)
		}
	})

	t.Run("pattern before large pdf", func(t *testing.T) {
		admit, reason := defaultEngine().Decide(Item{Name: "Full Book.pdf", Size: 40 * mb})
		if admit || reason != "Filename matches skip pattern: 'full book'" {
			t.Errorf("expected pattern reason, got %q", reason)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("normalises rules", func(t *testing.T) {
		e := New(Rules{Blacklist: []string{"EXE", " .Iso ", ""}, SkipPatterns: []string{"  Draft ", ""}})

		if admit, reason := e.Decide(Item{Name: "setup.exe"}); admit || reason != "File (.exe) - blacklisted file type" {
			t.Errorf("expected generic blacklist reason, got %q", reason)
		}
		if admit, _ := e.Decide(Item{Name: "disk.ISO"}); admit {
			t.Error("expected .iso to be blacklisted")
		}
		if admit, _ := e.Decide(Item{Name: "DRAFT essay.docx"}); admit {
			t.Error("expected pattern to match case-insensitively")
		}
	})

	t.Run("defaults limits", func(t *testing.T) {
		stats := New(Rules{}).Stats()
		if stats.MaxSizeMB != DefaultMaxSizeMB || stats.PDFMaxSizeMB != DefaultPDFMaxSizeMB {
			t.Errorf("expected default limits, got %+v", stats)
		}
	})

	t.Run("from config", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		stats := New(RulesFromConfig(cfg)).Stats()

		if len(stats.Blacklist) != len(cfg.Filters.ExtensionBlacklist) {
			t.Errorf("expected %d extensions, got %d", len(cfg.Filters.ExtensionBlacklist), len(stats.Blacklist))
		}
		if len(stats.SkipPatterns) != len(cfg.Filters.NamePatternsToSkip) {
			t.Errorf("expected %d patterns, got %d", len(cfg.Filters.NamePatternsToSkip), len(stats.SkipPatterns))
		}
	})
}
