package webforms

import (
	"fmt"
	"strings"
	"webforms-scraper/lib/textutil"
)

// DefaultListSeparator joins multiple values of a text field when the page does not
// declare a separator of its own.
const DefaultListSeparator = ","

type Kind int

const (
	KindText Kind = iota
	KindSelect
	KindCheckbox
	KindRadio
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSelect:
		return "select"
	case KindCheckbox:
		return "checkbox"
	case KindRadio:
		return "radio"
	case KindComposite:
		return "composite"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Composite is the payload of a composite multi-select field. Backing controls are
// referenced by name and live in the same Registry.
type Composite struct {
	// IndexField holds the comma separated indices of the selected options.
	IndexField string
	// Checkboxes and Labels are ordered by option index.
	Checkboxes []string
	Labels     []string
}

type Field struct {
	Name  string
	DomId string
	Label string
	Kind  Kind
	// InputType is the raw type attribute, "select" for <select> elements.
	InputType string

	Value    string
	Options  []Option
	Checked  bool
	Disabled bool
	ReadOnly bool

	// NullCheckbox names the paired checkbox that, when checked, blanks this field.
	NullCheckbox     string
	RequiresPostback bool
	ListSeparator    string

	// Owner names the composite display field this control backs, if any.
	Owner     string
	Composite *Composite
}

func (f *Field) IsSubmit() bool {
	return f.InputType == "submit"
}

func (f *Field) CheckboxLinked() bool {
	return f.NullCheckbox != ""
}

func (f *Field) separator() string {
	if f.ListSeparator == "" {
		return DefaultListSeparator
	}
	return f.ListSeparator
}

// postable reports whether the control is ever part of a form submission.
func (f *Field) postable() bool {
	switch f.InputType {
	case "button", "reset", "file", "image":
		return false
	}
	return true
}

func (f *Field) selectedOption() (Option, bool) {
	for _, o := range f.Options {
		if o.Selected {
			return o, true
		}
	}
	return Option{}, false
}

func (f *Field) findOption(value string) (int, bool) {
	for i, o := range f.Options {
		if o.Value == value {
			return i, true
		}
	}
	normalized := textutil.NormalizeLabel(value)
	for i, o := range f.Options {
		if textutil.NormalizeLabel(o.Label) == normalized {
			return i, true
		}
	}
	return -1, false
}

func (f *Field) optionLabels() []string {
	labels := make([]string, len(f.Options))
	for i, o := range f.Options {
		labels[i] = o.Label
	}
	return labels
}

func (f *Field) selectOption(values []string) error {
	if len(values) != 1 {
		return fmt.Errorf("field '%s' takes exactly one value, got %d", f.Name, len(values))
	}
	idx, ok := f.findOption(values[0])
	if !ok {
		return &UnknownFieldError{
			Kind:        "option",
			Key:         values[0],
			Field:       f.Name,
			Suggestions: textutil.ClosestMatches(values[0], f.optionLabels(), 3, 0.7),
		}
	}
	for i := range f.Options {
		f.Options[i].Selected = i == idx
	}
	f.Value = f.Options[idx].Value
	return nil
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "on", "1", "yes", "checked":
		return true
	}
	return false
}

func (f *Field) setChecked(values []string) error {
	if len(values) != 1 {
		return fmt.Errorf("checkbox '%s' takes exactly one value, got %d", f.Name, len(values))
	}
	f.Checked = truthy(values[0])
	return nil
}

// render returns the POST-ready value of a field that does not depend on other fields.
func (f *Field) render() string {
	switch f.Kind {
	case KindSelect:
		if o, ok := f.selectedOption(); ok {
			return o.Value
		}
		if len(f.Options) > 0 {
			return f.Options[0].Value
		}
		return f.Value
	case KindCheckbox:
		if !f.Checked {
			return ""
		}
		if f.Value == "" {
			return "on"
		}
		return f.Value
	}
	return f.Value
}
