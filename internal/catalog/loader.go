// Package catalog loads content specifications from YAML template files.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/timmy/councilgen/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtin embed.FS

// DefaultFiles is the load order of the template files, without extension.
var DefaultFiles = []string{
	"service-pages",
	"guide-pages",
	"directory-entries",
	"news-articles",
	"homepage",
}

type templateFile struct {
	ContentType     string         `yaml:"content_type"`
	GenerationOrder *int           `yaml:"generation_order"`
	Items           []templateItem `yaml:"items"`
}

type templateItem struct {
	ID              string                      `yaml:"id"`
	ContentType     string                      `yaml:"content_type"`
	TitleTemplate   string                      `yaml:"title_template"`
	Prompt          string                      `yaml:"prompt"`
	GenerationOrder *int                        `yaml:"generation_order"`
	Dependencies    []string                    `yaml:"dependencies"`
	Fields          map[string]string           `yaml:"fields"`
	Images          []domain.ImageSpecification `yaml:"images"`
	Metadata        map[string]string           `yaml:"metadata"`
}

// Loader reads template files from a filesystem and caches the result.
type Loader struct {
	fsys  fs.FS
	files []string

	mu    sync.Mutex
	specs []domain.ContentSpecification
}

// NewLoader creates a loader over fsys reading files in the given order.
// Parameters:
//   - fsys: filesystem containing "<name>.yaml" files.
//   - files: file names without extension; nil uses DefaultFiles.
//
// Returns:
//   - *Loader: loader instance.
func NewLoader(fsys fs.FS, files []string) *Loader {
	if len(files) == 0 {
		files = DefaultFiles
	}
	return &Loader{fsys: fsys, files: files}
}

// NewDirLoader reads templates from dir, or from the built-in set when dir is empty.
func NewDirLoader(dir string, files []string) (*Loader, error) {
	if dir == "" {
		sub, err := fs.Sub(builtin, "templates")
		if err != nil {
			return nil, err
		}
		return NewLoader(sub, files), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog path %s is not a directory", dir)
	}
	return NewLoader(os.DirFS(dir), files), nil
}

// LoadAll returns every specification in file order. Missing files are skipped;
// an empty catalog is an error.
func (l *Loader) LoadAll(ctx context.Context) ([]domain.ContentSpecification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.specs != nil {
		return l.specs, nil
	}

	var specs []domain.ContentSpecification
	for _, name := range l.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(l.fsys, name+".yaml")
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		parsed, err := Parse(data, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, parsed...)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no templates found in %v", l.files)
	}
	l.specs = specs
	return specs, nil
}

// Reset drops the cached specifications.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = nil
}

// Parse decodes one template file. Items inherit the file's content type and order.
func Parse(data []byte, source string) ([]domain.ContentSpecification, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", source, err)
	}

	fileKind := domain.ContentKind(file.ContentType)
	if fileKind == "" {
		fileKind = domain.ContentKindPage
	}
	fileOrder := domain.DefaultOrder
	if file.GenerationOrder != nil {
		fileOrder = *file.GenerationOrder
	}

	specs := make([]domain.ContentSpecification, 0, len(file.Items))
	for _, item := range file.Items {
		spec := domain.ContentSpecification{
			ID:            item.ID,
			Kind:          fileKind,
			TitleTemplate: item.TitleTemplate,
			Prompt:        item.Prompt,
			Images:        item.Images,
			Fields:        item.Fields,
			Order:         fileOrder,
			Dependencies:  item.Dependencies,
			Metadata:      item.Metadata,
		}
		if item.ContentType != "" {
			spec.Kind = domain.ContentKind(item.ContentType)
		}
		if item.GenerationOrder != nil {
			spec.Order = *item.GenerationOrder
		}
		if spec.Metadata == nil {
			spec.Metadata = map[string]string{}
		}
		spec.Metadata["source"] = path.Base(source)
		specs = append(specs, spec)
	}
	return specs, nil
}

// ContentCount is the number of specifications.
func ContentCount(specs []domain.ContentSpecification) int {
	return len(specs)
}

// ImageCount is the number of image requirements across all specifications, before deduplication.
func ImageCount(specs []domain.ContentSpecification) int {
	n := 0
	for _, s := range specs {
		n += len(s.Images)
	}
	return n
}

// CountByKind groups specifications by content kind.
func CountByKind(specs []domain.ContentSpecification) map[domain.ContentKind]int {
	out := make(map[domain.ContentKind]int)
	for _, s := range specs {
		out[s.Kind]++
	}
	return out
}
