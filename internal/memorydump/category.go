// Package memorydump classifies memory-infra process dumps into a fixed
// category tree and aggregates their byte statistics.
package memorydump

import (
	"regexp"
	"strings"
)

// RootName is the name of the root category; it is also its path.
const RootName = "/"

// Category is a node of the classification tree. A category with no
// pattern matches every mapped file. Categories are immutable once built.
type Category struct {
	name     string
	pattern  *regexp.Regexp
	exclude  *regexp.Regexp
	children []*Category
}

// Others absorbs mapped files that match none of the children of a category.
var Others = &Category{name: "Others"}

// newCategory builds a category. pattern and exclude may be empty.
func newCategory(name, pattern, exclude string, children ...*Category) *Category {
	c := &Category{name: name, children: children}
	if pattern != "" {
		c.pattern = regexp.MustCompile(pattern)
	}
	if exclude != "" {
		c.exclude = regexp.MustCompile(exclude)
	}
	return c
}

// RootCategory is the built-in classification of Android and Linux mappings.
var RootCategory = newCategory(RootName, "", "",
	// "/dev/ashmem" unless it is the libc malloc arena.
	newCategory("Android", `^/dev/ashmem`, `^/dev/ashmem/libc malloc`,
		newCategory("Java runtime", `^/dev/ashmem/dalvik-`, "",
			newCategory("Spaces", `/dalvik-(alloc|main|large object|non moving|zygote) space`, "",
				newCategory("Normal", `/dalvik-(alloc|main)`, ""),
				newCategory("Large", `/dalvik-large object`, ""),
				newCategory("Zygote", `/dalvik-zygote`, ""),
				newCategory("Non-moving", `/dalvik-non moving`, ""),
			),
			newCategory("Linear Alloc", `/dalvik-LinearAlloc`, ""),
			newCategory("Indirect Reference Table", `/dalvik-indirect.ref`, ""),
			newCategory("Cache", `/dalvik-jit-code-cache`, ""),
			newCategory("Accounting", "", ""),
		),
		newCategory("Cursor", `/CursorWindow`, ""),
		newCategory("Ashmem", "", ""),
	),
	newCategory("Native heap", `^((\[heap\])|(\[anon:)|(/dev/ashmem/libc malloc)|$)`, ""),
	newCategory("Stack", `^\[stack`, ""),
	newCategory("Files", `\.((((so)|(jar)|(apk)|(ttf)|(odex)|(oat)|(arg))$)|(dex))`, "",
		newCategory("so", `\.so$`, ""),
		newCategory("jar", `\.jar$`, ""),
		newCategory("apk", `\.apk$`, ""),
		newCategory("ttf", `\.ttf$`, ""),
		newCategory("dex", `\.((dex)|(odex$))`, ""),
		newCategory("oat", `\.oat$`, ""),
		newCategory("art", `\.art$`, ""),
	),
	newCategory("Devices", `(^/dev/)|(anon_inode:dmabuf)`, "",
		newCategory("GPU", `/((nv)|(mali)|(kgsl))`, ""),
		newCategory("DMA", `anon_inode:dmabuf`, ""),
	),
	newCategory("Discounted tracing overhead", `\[discounted tracing overhead\]`, ""),
)

// Name returns the category name.
func (c *Category) Name() string {
	return c.name
}

// Pattern returns the source of the match pattern, or "" if the category matches everything.
func (c *Category) Pattern() string {
	if c.pattern == nil {
		return ""
	}
	return c.pattern.String()
}

// Exclude returns the source of the exclusion pattern, or "".
func (c *Category) Exclude() string {
	if c.exclude == nil {
		return ""
	}
	return c.exclude.String()
}

// Children returns a copy of the child categories in match order.
func (c *Category) Children() []*Category {
	if len(c.children) == 0 {
		return nil
	}
	out := make([]*Category, len(c.children))
	copy(out, c.children)
	return out
}

// IsLeaf reports whether the category has no children.
func (c *Category) IsLeaf() bool {
	return len(c.children) == 0
}

// Match reports whether a mapped file belongs to this category.
func (c *Category) Match(mappedFile string) bool {
	if c.pattern != nil && !c.pattern.MatchString(mappedFile) {
		return false
	}
	return c.exclude == nil || !c.exclude.MatchString(mappedFile)
}

// MatchingChild returns the first child matching mappedFile, Others if no
// child matches, or nil if the category is a leaf.
func (c *Category) MatchingChild(mappedFile string) *Category {
	if len(c.children) == 0 {
		return nil
	}
	for _, child := range c.children {
		if child.Match(mappedFile) {
			return child
		}
	}
	return Others
}

// Classify walks the tree from root and returns the names of the visited
// categories, starting with the root name and ending at a leaf or Others.
func Classify(root *Category, mappedFile string) []string {
	var names []string
	for c := root; c != nil; c = c.MatchingChild(mappedFile) {
		names = append(names, c.name)
	}
	return names
}

// JoinPath appends a category name to a category path the way a POSIX path
// join does: absolute names restart the path.
func JoinPath(parent, name string) string {
	switch {
	case strings.HasPrefix(name, "/") || parent == "":
		return name
	case strings.HasSuffix(parent, "/"):
		return parent + name
	default:
		return parent + "/" + name
	}
}

// CategoryPath joins classified names into a category path such as
// "/Android/Java runtime/Cache".
func CategoryPath(names []string) string {
	path := ""
	for _, name := range names {
		path = JoinPath(path, name)
	}
	return path
}

// PrefixPaths returns the path of every category on a classification,
// from the root to the leaf inclusive.
func PrefixPaths(names []string) []string {
	paths := make([]string, 0, len(names))
	path := ""
	for _, name := range names {
		path = JoinPath(path, name)
		paths = append(paths, path)
	}
	return paths
}

// Walk visits root and its declared descendants depth-first. fn receives
// the category path and the depth (0 for root). Others is not visited.
func Walk(root *Category, fn func(path string, depth int, c *Category)) {
	var visit func(parent string, depth int, c *Category)
	visit = func(parent string, depth int, c *Category) {
		path := JoinPath(parent, c.name)
		fn(path, depth, c)
		for _, child := range c.children {
			visit(path, depth+1, child)
		}
	}
	if root != nil {
		visit("", 0, root)
	}
}
