package memorydump

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// categorySpec is the YAML form of a category.
type categorySpec struct {
	Name     string          `yaml:"name"`
	Pattern  string          `yaml:"pattern,omitempty"`
	Exclude  string          `yaml:"exclude,omitempty"`
	Children []*categorySpec `yaml:"children,omitempty"`
}

// LoadCategoryTree reads a category tree from YAML, for example:
//
//	name: /
//	children:
//	  - name: Stack
//	    pattern: '^\[stack'
//	  - name: Files
//	    pattern: '\.so$'
//
// The root must not have a pattern, names must be non-empty and unique
// among siblings, and every pattern must compile.
func LoadCategoryTree(r io.Reader) (*Category, error) {
	var spec categorySpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCategoryTree)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCategoryTree, err)
	}
	if spec.Pattern != "" || spec.Exclude != "" {
		return nil, fmt.Errorf("%w: root category %q must not have a pattern", ErrInvalidCategoryTree, spec.Name)
	}
	return buildCategory(&spec, "")
}

// LoadCategoryTreeFile reads a category tree from a YAML file.
func LoadCategoryTreeFile(path string) (*Category, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open category file: %w", err)
	}
	defer f.Close()
	return LoadCategoryTree(f)
}

func buildCategory(spec *categorySpec, parent string) (*Category, error) {
	if spec == nil || strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%w: category under %q has no name", ErrInvalidCategoryTree, parent)
	}
	path := JoinPath(parent, spec.Name)
	if parent != "" && strings.Contains(spec.Name, "/") {
		return nil, fmt.Errorf("%w: category name %q contains '/'", ErrInvalidCategoryTree, path)
	}

	c := &Category{name: spec.Name}
	var err error
	if spec.Pattern != "" {
		if c.pattern, err = regexp.Compile(spec.Pattern); err != nil {
			return nil, fmt.Errorf("%w: pattern of %q: %v", ErrInvalidCategoryTree, path, err)
		}
	}
	if spec.Exclude != "" {
		if c.exclude, err = regexp.Compile(spec.Exclude); err != nil {
			return nil, fmt.Errorf("%w: exclude of %q: %v", ErrInvalidCategoryTree, path, err)
		}
	}

	seen := make(map[string]bool, len(spec.Children))
	for _, childSpec := range spec.Children {
		child, err := buildCategory(childSpec, path)
		if err != nil {
			return nil, err
		}
		if seen[child.name] || child.name == Others.name {
			return nil, fmt.Errorf("%w: duplicate category %q under %q", ErrInvalidCategoryTree, child.name, path)
		}
		seen[child.name] = true
		c.children = append(c.children, child)
	}
	return c, nil
}

// EncodeCategoryTree writes root as YAML in the form LoadCategoryTree reads.
func EncodeCategoryTree(w io.Writer, root *Category) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toSpec(root)); err != nil {
		return fmt.Errorf("failed to encode category tree: %w", err)
	}
	return enc.Close()
}

func toSpec(c *Category) *categorySpec {
	spec := &categorySpec{
		Name:    c.name,
		Pattern: c.Pattern(),
		Exclude: c.Exclude(),
	}
	for _, child := range c.children {
		spec.Children = append(spec.Children, toSpec(child))
	}
	return spec
}
