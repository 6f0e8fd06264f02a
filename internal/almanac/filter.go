package almanac

import (
	"sort"
	"strings"

	"almanac/internal/model"
)

// CategoryAll is the category wildcard.
const CategoryAll = "all"

// Criteria narrows an occurrence list. Zero-valued fields do not filter.
type Criteria struct {
	// Category keeps occurrences of that category unless empty or "all".
	Category string
	// Tags keeps occurrences sharing at least one tag with the set.
	Tags []string
	// Search keeps occurrences whose title, description or a tag
	// contains the text, ignoring case.
	Search string
}

// IsZero reports whether c filters nothing.
func (c Criteria) IsZero() bool {
	cat := strings.TrimSpace(c.Category)
	return (cat == "" || strings.EqualFold(cat, CategoryAll)) &&
		len(normalizeTags(c.Tags)) == 0 &&
		strings.TrimSpace(c.Search) == ""
}

// FilterOccurrences returns the occurrences matching all criteria, in
// input order. The result is always a new slice, even when c is zero.
func FilterOccurrences(occs []model.Occurrence, c Criteria) []model.Occurrence {
	category := strings.TrimSpace(c.Category)
	if strings.EqualFold(category, CategoryAll) {
		category = ""
	}
	tags := normalizeTags(c.Tags)
	needle := strings.ToLower(strings.TrimSpace(c.Search))

	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if category != "" && !strings.EqualFold(string(o.Category), category) {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(o.Tags, tags) {
			continue
		}
		if needle != "" && !containsText(o, needle) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// AvailableTags returns the sorted, lower-cased union of tags across
// occs. Tags differing only in case select the same occurrences, so they
// collapse into one entry.
func AvailableTags(occs []model.Occurrence) []string {
	seen := make(map[string]struct{})
	for _, o := range occs {
		for _, tag := range o.Tags {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func normalizeTags(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			set[tag] = struct{}{}
		}
	}
	return set
}

func hasAnyTag(have []string, want map[string]struct{}) bool {
	for _, tag := range have {
		if _, ok := want[strings.ToLower(tag)]; ok {
			return true
		}
	}
	return false
}

func containsText(o model.Occurrence, needle string) bool {
	if strings.Contains(strings.ToLower(o.Title), needle) ||
		strings.Contains(strings.ToLower(o.Description), needle) {
		return true
	}
	for _, tag := range o.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
