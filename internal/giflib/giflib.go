// Package giflib indexes a folder of gif assets by filename tokens and picks
// a random asset for a requested tag.
package giflib

import (
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var tokenSplit = regexp.MustCompile(`[_\-\s]+`)

// Chooser supplies uniform integer draws in [0,n). *rand.Rand satisfies it.
type Chooser interface {
	Intn(n int) int
}

// Library maps lowercase filename tokens to the gif files carrying them.
// A file named "happy_cat-dance.gif" is indexed under "happy", "cat", and
// "dance".
type Library struct {
	folder string
	index  map[string][]string
	rng    Chooser
}

// New builds a library from the gif files in folder. A missing folder yields
// an empty library, not an error.
func New(folder string) *Library {
	lib := &Library{
		folder: folder,
		index:  make(map[string][]string),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	lib.buildIndex()
	return lib
}

// NewWithChooser builds a library with an injected random source for
// deterministic selection in tests.
func NewWithChooser(folder string, rng Chooser) *Library {
	lib := New(folder)
	lib.rng = rng
	return lib
}

func (l *Library) buildIndex() {
	entries, err := os.ReadDir(l.folder)
	if err != nil {
		slog.Debug("gif folder not readable, library empty", "folder", l.folder, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gif") {
			continue
		}
		path := filepath.Join(l.folder, entry.Name())
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		for _, tag := range tagsFromName(stem) {
			l.index[tag] = append(l.index[tag], path)
		}
	}
	slog.Debug("gif library indexed", "folder", l.folder, "tags", len(l.index))
}

func tagsFromName(stem string) []string {
	var tags []string
	for _, token := range tokenSplit.Split(strings.ToLower(stem), -1) {
		if token != "" {
			tags = append(tags, token)
		}
	}
	return tags
}

// Pick returns the path of a random gif carrying the tag, or "" when the tag
// is empty or unknown.
func (l *Library) Pick(tag string) string {
	if tag == "" {
		return ""
	}
	candidates := l.index[strings.ToLower(tag)]
	if len(candidates) == 0 {
		return ""
	}
	return candidates[l.rng.Intn(len(candidates))]
}

// Tags returns the number of distinct indexed tags.
func (l *Library) Tags() int {
	return len(l.index)
}
