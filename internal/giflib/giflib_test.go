package giflib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type firstChooser struct{}

func (firstChooser) Intn(n int) int { return 0 }

func writeGifs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("GIF89a"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestPickByFilenameToken(t *testing.T) {
	dir := writeGifs(t, "happy_cat.gif", "sad-dog.gif", "cat dance.gif", "notes.txt")
	lib := NewWithChooser(dir, firstChooser{})

	if got := lib.Pick("dog"); !strings.HasSuffix(got, "sad-dog.gif") {
		t.Errorf("Pick(dog) = %q", got)
	}
	if got := lib.Pick("CAT"); got == "" {
		t.Error("tag lookup should be case insensitive")
	}
	if got := lib.Pick("txt"); got != "" {
		t.Errorf("non-gif files must not be indexed, got %q", got)
	}
}

func TestPickUnknownOrEmptyTag(t *testing.T) {
	dir := writeGifs(t, "happy_cat.gif")
	lib := NewWithChooser(dir, firstChooser{})

	if got := lib.Pick(""); got != "" {
		t.Errorf("empty tag must return nothing, got %q", got)
	}
	if got := lib.Pick("unicorn"); got != "" {
		t.Errorf("unknown tag must return nothing, got %q", got)
	}
}

func TestMissingFolderIsEmpty(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if lib.Tags() != 0 {
		t.Errorf("missing folder should index nothing, got %d tags", lib.Tags())
	}
	if got := lib.Pick("cat"); got != "" {
		t.Errorf("Pick on empty library must return nothing, got %q", got)
	}
}

func TestMultipleFilesShareTag(t *testing.T) {
	dir := writeGifs(t, "cat_one.gif", "cat_two.gif")
	lib := NewWithChooser(dir, firstChooser{})
	got := lib.Pick("cat")
	if got == "" {
		t.Fatal("expected a candidate for shared tag")
	}
	if !strings.HasSuffix(got, ".gif") {
		t.Errorf("unexpected pick %q", got)
	}
}
