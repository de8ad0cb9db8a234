package memorydump

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of mapped files a Classifier remembers.
const DefaultCacheSize = 4096

// Classifier classifies mapped files against a category tree, remembering
// recent results. It is safe for concurrent use.
type Classifier struct {
	root  *Category
	cache *lru.Cache[string, []string]
}

// defaultClassifier has no cache so that it carries no mutable state.
var defaultClassifier = &Classifier{root: RootCategory}

// NewClassifier creates a classifier for root. A nil root selects
// RootCategory; a cacheSize of zero or less disables caching.
func NewClassifier(root *Category, cacheSize int) *Classifier {
	if root == nil {
		root = RootCategory
	}
	c := &Classifier{root: root}
	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		c.cache, _ = lru.New[string, []string](cacheSize)
	}
	return c
}

// Root returns the category tree used by the classifier.
func (c *Classifier) Root() *Category {
	return c.root
}

// Classify returns the category names for mappedFile, see Classify.
func (c *Classifier) Classify(mappedFile string) []string {
	return Classify(c.root, mappedFile)
}

// Paths returns the category paths a region with mappedFile contributes
// to, from the root to its leaf. The returned slice must not be modified.
func (c *Classifier) Paths(mappedFile string) []string {
	if c.cache != nil {
		if paths, ok := c.cache.Get(mappedFile); ok {
			return paths
		}
	}
	paths := PrefixPaths(Classify(c.root, mappedFile))
	if c.cache != nil {
		c.cache.Add(mappedFile, paths)
	}
	return paths
}

// CacheLen returns the number of cached classifications.
func (c *Classifier) CacheLen() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
