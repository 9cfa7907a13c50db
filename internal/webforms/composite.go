package webforms

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"webforms-scraper/lib/textutil"
)

// Markers are the naming conventions the report server uses for the controls that make
// up composite multi-selects and nullable parameters.
type Markers struct {
	// HiddenIndices marks the hidden field holding the selected option indices.
	HiddenIndices string
	// DropDown marks the container of the numbered option checkboxes.
	DropDown string
	// DisplaySuffix is the id suffix of a composite's display text field.
	DisplaySuffix string
	// NullSuffix is the id suffix of a "null" checkbox.
	NullSuffix string
	// NullLabel is the label text of a "null" checkbox.
	NullLabel string
	// SelectAll is the label of the option checkbox that toggles every option.
	SelectAll string
	// ValueSuffixes are the id suffixes a null checkbox's value field may carry.
	ValueSuffixes []string
}

func DefaultMarkers() Markers {
	return Markers{
		HiddenIndices: "HiddenIndices",
		DropDown:      "divDropDown",
		DisplaySuffix: "txtValue",
		NullSuffix:    "cbNull",
		NullLabel:     "null",
		SelectAll:     "(Select All)",
		ValueSuffixes: []string{"txtValue", "ddValue", "rbTrue"},
	}
}

func parseIndices(list string) []int {
	var out []int
	seen := map[int]bool{}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func joinIndices(indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}

// compositeSelection returns the selected option indices, read from the index field.
func (r *Registry) compositeSelection(f *Field) []int {
	c := f.Composite
	if c == nil {
		return nil
	}
	index, ok := r.fields[c.IndexField]
	if !ok {
		return nil
	}
	var out []int
	for _, idx := range parseIndices(index.Value) {
		if idx < len(c.Labels) {
			out = append(out, idx)
		}
	}
	return out
}

func (r *Registry) renderComposite(f *Field) string {
	if f.Composite == nil {
		return f.Value
	}
	indices := r.compositeSelection(f)
	labels := make([]string, len(indices))
	for i, idx := range indices {
		labels[i] = f.Composite.Labels[idx]
	}
	return strings.Join(labels, f.separator())
}

// SelectedLabels returns the labels of the selected options of a composite field.
func (r *Registry) SelectedLabels(name string) ([]string, error) {
	f, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	if f.Composite == nil {
		return nil, fmt.Errorf("field '%s' is not a composite", name)
	}
	var out []string
	for _, idx := range r.compositeSelection(f) {
		out = append(out, f.Composite.Labels[idx])
	}
	return out, nil
}

// syncComposite writes a selection to the index field and the option checkboxes, then
// re-derives the display text.
func (r *Registry) syncComposite(f *Field, indices []int) {
	c := f.Composite
	selected := map[int]bool{}
	for _, idx := range indices {
		selected[idx] = true
	}

	if index, ok := r.fields[c.IndexField]; ok {
		index.Value = joinIndices(indices)
	}
	for i, name := range c.Checkboxes {
		cb, ok := r.fields[name]
		if !ok {
			continue
		}
		cb.Checked = selected[i]
	}
	f.Value = r.renderComposite(f)
}

func (r *Registry) setComposite(f *Field, values []string) error {
	c := f.Composite
	if c == nil {
		f.Value = strings.Join(values, f.separator())
		return nil
	}

	var indices []int
	seen := map[int]bool{}
	for _, v := range values {
		idx := -1
		normalized := textutil.NormalizeLabel(v)
		for i, label := range c.Labels {
			if textutil.NormalizeLabel(label) == normalized {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &UnknownFieldError{
				Kind:        "option",
				Key:         v,
				Field:       f.Name,
				Suggestions: textutil.ClosestMatches(v, c.Labels, 3, 0.7),
			}
		}
		if !seen[idx] {
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	r.syncComposite(f, indices)
	return nil
}

// resolveComposites pairs every hidden index field among names with its display field
// and option checkboxes. names must be in document order; optionLabels maps checkbox
// dom ids to their label text. The dom ids of consumed labels are returned.
func (r *Registry) resolveComposites(names []string, optionLabels map[string]string, m Markers) map[string]bool {
	consumed := map[string]bool{}

	for _, name := range names {
		hidden, ok := r.fields[name]
		if !ok || !strings.Contains(hidden.DomId, m.HiddenIndices) {
			continue
		}

		cut := strings.Index(hidden.DomId, m.DropDown)
		if cut < 0 {
			cut = strings.Index(hidden.DomId, m.HiddenIndices)
		}
		prefix := hidden.DomId[:cut]

		displayName, ok := r.byId[prefix+m.DisplaySuffix]
		if !ok {
			continue
		}
		display := r.fields[displayName]

		composite := &Composite{IndexField: hidden.Name}
		checked := map[int]bool{}
		optionPrefix := prefix + m.DropDown
		for _, cbName := range names {
			cb, ok := r.fields[cbName]
			if !ok || cb.Kind != KindCheckbox || !strings.HasPrefix(cb.DomId, optionPrefix) {
				continue
			}
			cb.Owner = display.Name
			label := optionLabels[cb.DomId]
			consumed[cb.DomId] = true
			if textutil.NormalizeLabel(label) == textutil.NormalizeLabel(m.SelectAll) {
				continue
			}
			if cb.Checked {
				checked[len(composite.Labels)] = true
			}
			composite.Checkboxes = append(composite.Checkboxes, cb.Name)
			composite.Labels = append(composite.Labels, label)
		}

		hidden.Owner = display.Name
		display.Kind = KindComposite
		display.Composite = composite

		indices := parseIndices(hidden.Value)
		for idx := range checked {
			indices = append(indices, idx)
		}
		var selection []int
		seen := map[int]bool{}
		for _, idx := range indices {
			if idx < len(composite.Labels) && !seen[idx] {
				seen[idx] = true
				selection = append(selection, idx)
			}
		}
		sort.Ints(selection)
		r.syncComposite(display, selection)
	}

	return consumed
}
