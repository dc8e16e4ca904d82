package organizer

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/desertthunder/cvsync/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Lecture 1.pdf", "Lecture 1.pdf"},
		{`a/b\c:d*e?f"g<h>i|j.txt`, "a_b_c_d_e_f_g_h_i_j.txt"},
		{"  ..hidden.. ", "hidden"},
		{"...", "unnamed"},
		{"", "unnamed"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	t.Run("caps length keeping extension", func(t *testing.T) {
		got := Sanitize(strings.Repeat("x", 300) + ".pdf")
		if len(got) != MaxNameLength {
			t.Errorf("expected length %d, got %d", MaxNameLength, len(got))
		}
		if !strings.HasSuffix(got, ".pdf") {
			t.Errorf("expected .pdf suffix, got %q", got[len(got)-8:])
		}
	})
}

func TestCourseDir(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/mirror")
	got := o.CourseDir(models.Course{ID: "7", Code: "CS 101", Name: "Intro: Programming", Term: "Fall 2025"})

	want := filepath.Join("/mirror", "CS 101 - Intro_ Programming (Fall 2025)")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestResolvePath(t *testing.T) {
	courseDir := filepath.Join("/mirror", "CS 101 - Intro (Fall 2025)")

	t.Run("nested folder", func(t *testing.T) {
		o := New(afero.NewMemMapFs(), "/mirror")

		got, err := o.ResolvePath(courseDir, "Lectures/Week 1/", "slides?.pdf")
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}

		want := filepath.Join(courseDir, "Lectures", "Week 1", "slides_.pdf")
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
		if rel := o.Relative(got); rel != filepath.Join("CS 101 - Intro (Fall 2025)", "Lectures", "Week 1", "slides_.pdf") {
			t.Errorf("unexpected relative path %q", rel)
		}
	})

	t.Run("existing file gets suffix", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		existing := filepath.Join(courseDir, "notes.pdf")
		if err := afero.WriteFile(fsys, existing, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}
		if err := afero.WriteFile(fsys, filepath.Join(courseDir, "notes_1.pdf"), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}

		got, err := New(fsys, "/mirror").ResolvePath(courseDir, "", "notes.pdf")
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if want := filepath.Join(courseDir, "notes_2.pdf"); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("reservations collide within a pass", func(t *testing.T) {
		o := New(afero.NewMemMapFs(), "/mirror")

		first, _ := o.ResolvePath(courseDir, "", "hw.docx")
		second, _ := o.ResolvePath(courseDir, "", "hw.docx")
		if first == second {
			t.Fatalf("expected distinct paths, got %q twice", first)
		}
		if filepath.Base(second) != "hw_1.docx" {
			t.Errorf("expected hw_1.docx, got %q", filepath.Base(second))
		}

		o.Reset()
		again, _ := o.ResolvePath(courseDir, "", "hw.docx")
		if again != first {
			t.Errorf("expected reset to free %q, got %q", first, again)
		}
	})

	t.Run("Reserve", func(t *testing.T) {
		o := New(afero.NewMemMapFs(), "/mirror")
		o.Reserve(filepath.Join(courseDir, "a.txt"))

		got, _ := o.ResolvePath(courseDir, "", "a.txt")
		if filepath.Base(got) != "a_1.txt" {
			t.Errorf("expected a_1.txt, got %q", got)
		}
	})
}
