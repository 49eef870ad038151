package prompt

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Registry provides access to prompt definitions.
type Registry interface {
	Get(slug string) (*Prompt, error)
	List() []*Prompt
}

// InMemoryRegistry is a fixed prompt set keyed by slug.
type InMemoryRegistry struct {
	bySlug map[string]*Prompt
}

// NewRegistry indexes prompts by slug. nil entries are skipped; a blank or
// repeated slug is an error.
func NewRegistry(prompts []*Prompt) (*InMemoryRegistry, error) {
	bySlug := make(map[string]*Prompt, len(prompts))
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		switch _, dup := bySlug[slug]; {
		case slug == "":
			return nil, fmt.Errorf("prompt missing slug")
		case dup:
			return nil, fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		bySlug[slug] = p
	}
	return &InMemoryRegistry{bySlug: bySlug}, nil
}

func (r *InMemoryRegistry) Get(slug string) (*Prompt, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry not configured")
	}
	if slug = strings.TrimSpace(slug); slug == "" {
		return nil, fmt.Errorf("prompt slug is required")
	}
	if p, ok := r.bySlug[slug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt %q not found", slug)
}

// List returns prompts ordered by slug.
func (r *InMemoryRegistry) List() []*Prompt {
	if r == nil {
		return nil
	}
	out := make([]*Prompt, 0, len(r.bySlug))
	for _, slug := range slices.Sorted(maps.Keys(r.bySlug)) {
		out = append(out, r.bySlug[slug])
	}
	return out
}

// Overlay returns a registry holding base with every prompt in overrides
// replacing the base prompt of the same slug.
func Overlay(base []*Prompt, overrides []*Prompt) (*InMemoryRegistry, error) {
	merged := make(map[string]*Prompt, len(base)+len(overrides))
	order := make([]string, 0, len(base)+len(overrides))
	add := func(list []*Prompt, replace bool) error {
		for _, p := range list {
			if p == nil {
				continue
			}
			slug := strings.TrimSpace(p.Config.Slug)
			if _, ok := merged[slug]; ok && !replace {
				return fmt.Errorf("duplicate prompt slug: %s", slug)
			} else if !ok {
				order = append(order, slug)
			}
			merged[slug] = p
		}
		return nil
	}
	if err := add(base, false); err != nil {
		return nil, err
	}
	if err := add(overrides, true); err != nil {
		return nil, err
	}
	result := make([]*Prompt, 0, len(order))
	for _, slug := range order {
		result = append(result, merged[slug])
	}
	return NewRegistry(result)
}
