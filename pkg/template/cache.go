package template

import (
	"fmt"

	arc "github.com/hashicorp/golang-lru/arc/v2"
)

// DefaultCacheSize is used when NewCache is given a non-positive size
const DefaultCacheSize = 128

// Cache holds parsed pipelines keyed by template text. Failed parses are not
// cached. A Cache is safe for concurrent use.
type Cache struct {
	pipelines *arc.ARCCache[string, *Pipeline]
}

// NewCache creates a cache holding up to size pipelines
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := arc.NewARC[string, *Pipeline](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline cache: %w", err)
	}
	return &Cache{pipelines: c}, nil
}

// Parse returns the cached pipeline for s, parsing it on a miss.
func (c *Cache) Parse(s string) (*Pipeline, error) {
	if p, ok := c.pipelines.Get(s); ok {
		return p, nil
	}
	p, err := Parse(s)
	if err != nil {
		return nil, err
	}
	c.pipelines.Add(s, p)
	return p, nil
}

// Len returns the number of cached pipelines
func (c *Cache) Len() int {
	return c.pipelines.Len()
}
