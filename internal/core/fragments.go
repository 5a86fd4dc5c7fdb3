package core

import (
	"github.com/chatsnip/chatsnip/internal/store"
)

// GroupFragmentsByFilename groups a chat's fragments by filename; anonymous
// fragments fall under the empty key.
func GroupFragmentsByFilename(fragments []store.CodeFragment) map[string][]store.CodeFragment {
	groups := make(map[string][]store.CodeFragment)
	for _, fragment := range fragments {
		key := ""
		if fragment.Filename != nil {
			key = *fragment.Filename
		}
		groups[key] = append(groups[key], fragment)
	}
	return groups
}

// CurrentFragment picks the version to display from one filename group.
// Current version = max by (selected as priority bit, creation time, id).
func CurrentFragment(group []store.CodeFragment) *store.CodeFragment {
	if len(group) == 0 {
		return nil
	}
	current := &group[0]
	for i := 1; i < len(group); i++ {
		if fragmentLess(current, &group[i]) {
			current = &group[i]
		}
	}
	return current
}

// SelectedFragments maps every filename group to its current version.
func SelectedFragments(fragments []store.CodeFragment) map[string]*store.CodeFragment {
	selected := make(map[string]*store.CodeFragment)
	for filename, group := range GroupFragmentsByFilename(fragments) {
		selected[filename] = CurrentFragment(group)
	}
	return selected
}

func fragmentLess(a, b *store.CodeFragment) bool {
	if a.Selected != b.Selected {
		return b.Selected
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
