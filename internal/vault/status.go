package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StatusEntry pairs an item with its validation outcome.
type StatusEntry struct {
	Item Item
	Err  error
}

// StatusResult contains the results of a status check.
type StatusResult struct {
	Entries          []StatusEntry
	ValidationFailed bool

	// Unindexed lists container files in the images directory with no index entry.
	Unindexed []string
}

// Status lists indexed items, validates each against the filesystem and
// reports containers the index does not know about.
func (v *Vault) Status() (StatusResult, error) {
	var items []Item
	err := v.withIndex(func(x *Index) error {
		var err error
		items, err = x.List()
		return err
	})
	if err != nil {
		return StatusResult{}, err
	}

	var result StatusResult
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ContainerFile] = true

		// Invalid items are reported, processing continues.
		verr := ValidateItem(item, v.layout)
		if verr != nil {
			result.ValidationFailed = true
		}
		result.Entries = append(result.Entries, StatusEntry{Item: item, Err: verr})
	}

	entries, err := os.ReadDir(v.layout.ImagesDir)
	if err != nil {
		return StatusResult{}, fmt.Errorf("cannot read images directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".bin" {
			continue
		}
		if !known[entry.Name()] {
			result.Unindexed = append(result.Unindexed, filepath.Join(v.layout.ImagesDir, entry.Name()))
		}
	}
	sort.Strings(result.Unindexed)

	return result, nil
}

// FormatStatusOutput formats a status result for display.
func FormatStatusOutput(result StatusResult) string {
	if len(result.Entries) == 0 && len(result.Unindexed) == 0 {
		return "no encrypted images\n"
	}

	var b strings.Builder
	for _, e := range result.Entries {
		state := "ok"
		if e.Err != nil {
			state = "invalid: " + e.Err.Error()
		}
		fmt.Fprintf(&b, "id: %s\ncreated: %s\nformat: %s %dx%d\nsize: %d bytes\nstate: %s\n\n",
			e.Item.ID,
			e.Item.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			e.Item.Format,
			e.Item.Width,
			e.Item.Height,
			e.Item.PlainSize,
			state)
	}
	for _, path := range result.Unindexed {
		fmt.Fprintf(&b, "unindexed: %s\n", path)
	}

	return b.String()
}

// Remove deletes an item's container, its key file unless keepKey is set,
// and its index entry. Files already gone are not an error.
func (v *Vault) Remove(id string, keepKey bool) error {
	item, err := v.lookup(id)
	if err != nil {
		return err
	}

	if err := removeIfExists(v.layout.ContainerPath(item.ID)); err != nil {
		return fmt.Errorf("cannot remove encrypted image: %w", err)
	}
	if !keepKey {
		if err := removeIfExists(v.layout.KeyPath(item.ID)); err != nil {
			return fmt.Errorf("cannot remove key file: %w", err)
		}
	}

	return v.withIndex(func(x *Index) error { return x.Delete(item.ID) })
}
