package variant

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Registry хранит каталоги товаров по handle. Загружается один раз.
type Registry struct {
	catalogs map[string]*Catalog
}

// NewRegistry создаёт реестр из готовых каталогов.
func NewRegistry(catalogs map[string]*Catalog) *Registry {
	r := &Registry{catalogs: make(map[string]*Catalog, len(catalogs))}
	for handle, c := range catalogs {
		r.catalogs[handle] = c
	}
	return r
}

// LoadDir читает все *.json из dir. Handle берётся из файла, иначе из имени файла.
func LoadDir(dir string) (*Registry, error) {
	r := &Registry{catalogs: make(map[string]*Catalog)}
	if dir == "" {
		return r, nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		c, err := LoadCatalog(raw)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}
		handle := c.Handle()
		if handle == "" {
			handle = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			c.handle = handle
		}
		r.catalogs[handle] = c
	}
	return r, nil
}

// Get возвращает каталог товара.
func (r *Registry) Get(handle string) (*Catalog, error) {
	c, ok := r.catalogs[handle]
	if !ok {
		return nil, fmt.Errorf("product %q: %w", handle, domain.ErrProductNotFound)
	}
	return c, nil
}

// Handles возвращает отсортированный список handle.
func (r *Registry) Handles() []string {
	handles := make([]string, 0, len(r.catalogs))
	for h := range r.catalogs {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}
