package webforms

// NeedsPostback reports whether a change to f must be posted back before any other field
// may be changed. Backing controls count: a null checkbox, a composite's index field and
// its option checkboxes.
func NeedsPostback(reg *Registry, f *Field) bool {
	if f.RequiresPostback {
		return true
	}
	related := []string{f.NullCheckbox}
	if f.Composite != nil {
		related = append(related, f.Composite.IndexField)
		related = append(related, f.Composite.Checkboxes...)
	}
	for _, name := range related {
		other, ok := reg.fields[name]
		if ok && other.RequiresPostback {
			return true
		}
	}
	return false
}

// SetByLabel sets the field a human label points at. Labels on composite backing
// controls resolve to the display field. The returned bool tells whether a postback is
// now due. A failed lookup or an unknown option leaves the registry untouched.
func (r *Registry) SetByLabel(label string, values ...string) (*Field, bool, error) {
	f, err := r.ByLabel(label)
	if err != nil {
		return nil, false, err
	}
	if owner, ok := r.fields[f.Owner]; ok {
		f = owner
	}
	err = r.SetValue(f.Name, values...)
	if err != nil {
		return nil, false, err
	}
	return f, NeedsPostback(r, f), nil
}
