package curriculum

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Loader loads and caches the chapter catalog. The embedded catalog is always
// loaded first; YAML files under an optional override directory are merged on
// top of it.
type Loader struct {
	rootDir  string
	subjects []Subject
	mu       sync.RWMutex
}

// NewLoader creates a new catalog loader and loads all content. An empty
// rootDir uses the embedded catalog only.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{rootDir: rootDir}

	var base Catalog
	if err := yaml.Unmarshal(embeddedCatalog, &base); err != nil {
		return nil, fmt.Errorf("parsing embedded catalog: %w", err)
	}
	l.merge(base)

	if rootDir != "" {
		if err := l.loadAll(); err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
	}

	slog.Info("catalog loaded", "subjects", len(l.subjects), "chapters", l.chapterCount())
	return l, nil
}

// Catalog returns a copy of the full catalog.
func (l *Loader) Catalog() Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := Catalog{Subjects: make([]Subject, len(l.subjects))}
	for i, s := range l.subjects {
		out.Subjects[i] = cloneSubject(s)
	}
	return out
}

// Subjects returns the subject names in catalog order.
func (l *Loader) Subjects() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.subjects))
	for _, s := range l.subjects {
		names = append(names, s.Name)
	}
	return names
}

// Subject returns a subject by name.
func (l *Loader) Subject(name string) (Subject, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.subjects {
		if s.Name == name {
			return cloneSubject(s), true
		}
	}
	return Subject{}, false
}

// Standards returns the standard names offered for a subject.
func (l *Loader) Standards(subject string) []string {
	s, ok := l.Subject(subject)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(s.Standards))
	for _, st := range s.Standards {
		names = append(names, st.Name)
	}
	return names
}

// Chapters returns the ordered chapters for a (subject, standard) pair.
func (l *Loader) Chapters(subject, standard string) []string {
	s, ok := l.Subject(subject)
	if !ok {
		return nil
	}
	for _, st := range s.Standards {
		if st.Name == standard {
			return st.Chapters
		}
	}
	return nil
}

// HasCourse reports whether the subject is offered for the standard.
func (l *Loader) HasCourse(subject, standard string) bool {
	s, ok := l.Subject(subject)
	if !ok {
		return false
	}
	for _, st := range s.Standards {
		if st.Name == standard {
			return true
		}
	}
	return false
}

// HasChapter reports whether the chapter belongs to the (subject, standard)
// pair.
func (l *Loader) HasChapter(subject, standard, chapter string) bool {
	for _, c := range l.Chapters(subject, standard) {
		if c == chapter {
			return true
		}
	}
	return false
}

// Style returns the prompt style for a subject, StyleGeneral if unknown.
func (l *Loader) Style(subject string) SubjectStyle {
	s, ok := l.Subject(subject)
	if !ok || s.Style == "" {
		return StyleGeneral
	}
	return s.Style
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadCatalogFile(path)
		}
		return nil
	})
}

func (l *Loader) loadCatalogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil
	}

	if len(cat.Subjects) == 0 {
		return nil // Not a catalog file
	}

	l.merge(cat)
	return nil
}

// merge adds subjects and standards from cat. A standard that already exists
// has its chapter list replaced; a missing style keeps the existing one.
func (l *Loader) merge(cat Catalog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, incoming := range cat.Subjects {
		if incoming.Name == "" {
			continue
		}
		idx := -1
		for i, s := range l.subjects {
			if s.Name == incoming.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			l.subjects = append(l.subjects, cloneSubject(incoming))
			continue
		}

		existing := &l.subjects[idx]
		if incoming.Style != "" {
			existing.Style = incoming.Style
		}
		for _, st := range incoming.Standards {
			replaced := false
			for j := range existing.Standards {
				if existing.Standards[j].Name == st.Name {
					existing.Standards[j].Chapters = append([]string(nil), st.Chapters...)
					replaced = true
					break
				}
			}
			if !replaced {
				existing.Standards = append(existing.Standards, Standard{
					Name:     st.Name,
					Chapters: append([]string(nil), st.Chapters...),
				})
			}
		}
	}
}

func (l *Loader) chapterCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, s := range l.subjects {
		for _, st := range s.Standards {
			n += len(st.Chapters)
		}
	}
	return n
}

func cloneSubject(s Subject) Subject {
	out := Subject{Name: s.Name, Style: s.Style, Standards: make([]Standard, len(s.Standards))}
	for i, st := range s.Standards {
		out.Standards[i] = Standard{Name: st.Name, Chapters: append([]string(nil), st.Chapters...)}
	}
	return out
}
