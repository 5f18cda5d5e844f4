package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"trackitall/internal/core"
	"trackitall/internal/taxonomy"
)

// SeedFile is the category seed read by NewFromFiles, one "id,name" per line.
const SeedFile = "seed_categories.txt"

var _ taxonomy.CategoryReader = (*Store)(nil)

// Store is an in-memory category source.
type Store struct {
	mu   sync.Mutex
	cats []core.Category
}

func New(cats []core.Category) *Store {
	return &Store{cats: dedupe(cats)}
}

// DefaultCategories returns "Category 0" through "Category 5".
func DefaultCategories() []core.Category {
	cats := make([]core.Category, 0, 6)
	for i := 0; i < 6; i++ {
		cats = append(cats, core.Category{ID: i, Name: fmt.Sprintf("Category %d", i)})
	}
	return cats
}

// NewFromFiles reads base/seed_categories.txt, falling back to the defaults
// when the file is missing or holds no valid line.
func NewFromFiles(base string) *Store {
	cats := readCategories(filepath.Join(base, SeedFile))
	if len(cats) == 0 {
		cats = DefaultCategories()
	}
	return New(cats)
}

// ListCategories returns a copy of the categories.
func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

// Replace swaps the category set.
func (s *Store) Replace(cats []core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cats = dedupe(cats)
}

func readCategories(path string) []core.Category {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []core.Category
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idStr, name, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			continue
		}
		out = append(out, core.Category{ID: id, Name: strings.TrimSpace(name)})
	}
	return out
}

// dedupe keeps the first entry per id and drops unnamed ones, preserving order.
func dedupe(in []core.Category) []core.Category {
	seen := map[int]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
