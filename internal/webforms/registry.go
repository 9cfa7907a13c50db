package webforms

import (
	"net/url"
	"sort"
	"strings"
	"webforms-scraper/lib/textutil"
)

const (
	EventTarget   = "__EVENTTARGET"
	EventArgument = "__EVENTARGUMENT"
	LastFocus     = "__LASTFOCUS"
	AsyncPost     = "__ASYNCPOST"
)

type Pair struct {
	Name  string
	Value string
}

// Values converts pairs into url.Values ready for a form encoded body.
func Values(pairs []Pair) url.Values {
	out := url.Values{}
	for _, p := range pairs {
		out.Add(p.Name, p.Value)
	}
	return out
}

// Registry owns every field of one session. Fields reference each other by name only.
type Registry struct {
	fields  map[string]*Field
	byId    map[string]string
	byLabel map[string]string
	// order records the position at which each name was first registered.
	order map[string]int
}

// NewRegistry returns a registry holding only the bootstrap fields every postback carries.
func NewRegistry() *Registry {
	r := &Registry{
		fields:  map[string]*Field{},
		byId:    map[string]string{},
		byLabel: map[string]string{},
		order:   map[string]int{},
	}
	for _, name := range []string{EventTarget, EventArgument, LastFocus, AsyncPost} {
		f := &Field{
			Name:      name,
			DomId:     name,
			Kind:      KindText,
			InputType: "hidden",
		}
		if name == AsyncPost {
			f.Value = "true"
		}
		r.Register(f)
	}
	return r
}

// Register inserts or overwrites a field by name, last write wins. A label held by the
// previous field of the same name is carried over when the new one has none.
func (r *Registry) Register(f *Field) {
	prev, exists := r.fields[f.Name]
	if exists {
		if prev.DomId != "" && r.byId[prev.DomId] == f.Name {
			delete(r.byId, prev.DomId)
		}
		if f.Label == "" {
			f.Label = prev.Label
		}
		if prev.Label != "" && prev.Label != f.Label {
			key := textutil.NormalizeLabel(prev.Label)
			if r.byLabel[key] == f.Name {
				delete(r.byLabel, key)
			}
		}
	}

	r.fields[f.Name] = f
	if _, ok := r.order[f.Name]; !ok {
		r.order[f.Name] = len(r.order)
	}
	if f.DomId != "" {
		r.byId[f.DomId] = f.Name
	}
	if f.Label != "" {
		r.byLabel[textutil.NormalizeLabel(f.Label)] = f.Name
	}
}

// SetLabel attaches a human label to a registered field and indexes it.
func (r *Registry) SetLabel(name, label string) error {
	f, err := r.ByName(name)
	if err != nil {
		return err
	}
	if f.Label != "" {
		key := textutil.NormalizeLabel(f.Label)
		if r.byLabel[key] == f.Name {
			delete(r.byLabel, key)
		}
	}
	f.Label = label
	if label != "" {
		r.byLabel[textutil.NormalizeLabel(label)] = f.Name
	}
	return nil
}

// SetHidden updates the value of a field, creating a hidden field when it does not exist.
func (r *Registry) SetHidden(name, value string) {
	f, ok := r.fields[name]
	if ok {
		f.Value = value
		owner, ok := r.fields[f.Owner]
		if ok && owner.Composite != nil && owner.Composite.IndexField == name {
			r.syncComposite(owner, r.compositeSelection(owner))
		}
		return
	}
	r.Register(&Field{
		Name:      name,
		Kind:      KindText,
		InputType: "hidden",
		Value:     value,
	})
}

func (r *Registry) ByName(name string) (*Field, error) {
	f, ok := r.fields[name]
	if ok {
		return f, nil
	}
	var matches []string
	for key := range r.fields {
		if strings.EqualFold(key, name) {
			matches = append(matches, key)
		}
	}
	if len(matches) == 1 {
		return r.fields[matches[0]], nil
	}
	// names differing only by case are ambiguous
	sort.Strings(matches)
	return nil, &UnknownFieldError{Kind: "name", Key: name, Suggestions: matches}
}

func (r *Registry) ById(id string) (*Field, error) {
	name, ok := r.byId[id]
	if !ok {
		return nil, &UnknownFieldError{Kind: "id", Key: id}
	}
	return r.fields[name], nil
}

// ByLabel looks a field up by its human label, ignoring case and whitespace differences.
func (r *Registry) ByLabel(label string) (*Field, error) {
	name, ok := r.byLabel[textutil.NormalizeLabel(label)]
	if !ok {
		return nil, &UnknownFieldError{
			Kind:        "label",
			Key:         label,
			Suggestions: textutil.ClosestMatches(label, r.Labels(), 3, 0.7),
		}
	}
	return r.fields[name], nil
}

func (r *Registry) Len() int {
	return len(r.fields)
}

func (r *Registry) LabelCount() int {
	return len(r.byLabel)
}

// Labels returns the labels of every labelled field, sorted.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.byLabel))
	for _, name := range r.byLabel {
		labels = append(labels, r.fields[name].Label)
	}
	sort.Strings(labels)
	return labels
}

// Fields returns every field sorted by name.
func (r *Registry) Fields() []*Field {
	out := make([]*Field, 0, len(r.fields))
	for _, f := range r.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// SubmitControls returns the submit inputs in the order they were first registered,
// which is document order for a parsed page.
func (r *Registry) SubmitControls() []*Field {
	var out []*Field
	for _, f := range r.fields {
		if f.IsSubmit() {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.order[out[i].Name] < r.order[out[j].Name]
	})
	return out
}

// Value renders the POST-ready value of a field from the current in-memory state.
func (r *Registry) Value(name string) (string, error) {
	f, err := r.ByName(name)
	if err != nil {
		return "", err
	}
	return r.render(f), nil
}

func (r *Registry) render(f *Field) string {
	if r.nullChecked(f) {
		return ""
	}
	if f.Kind == KindComposite {
		return r.renderComposite(f)
	}
	return f.render()
}

func (r *Registry) nullChecked(f *Field) bool {
	if f.NullCheckbox == "" {
		return false
	}
	cb, ok := r.fields[f.NullCheckbox]
	return ok && cb.Checked
}

// SetValue applies values to a field according to its kind. It never performs I/O.
func (r *Registry) SetValue(name string, values ...string) error {
	f, err := r.ByName(name)
	if err != nil {
		return err
	}

	switch f.Kind {
	case KindSelect, KindRadio:
		err = f.selectOption(values)
	case KindCheckbox:
		err = f.setChecked(values)
	case KindComposite:
		err = r.setComposite(f, values)
	default:
		f.Value = strings.Join(values, f.separator())
	}
	if err != nil {
		return err
	}

	if f.NullCheckbox != "" {
		cb, ok := r.fields[f.NullCheckbox]
		if ok {
			cb.Checked = false
		}
		f.Disabled = false
	}
	return nil
}

// PostData returns the name/value pairs of a partial postback sorted by name.
func (r *Registry) PostData() []Pair {
	return r.collect(func(*Field) bool { return false })
}

// SubmissionData is PostData plus the submit controls of the form, restricted to the
// given controls when any are named.
func (r *Registry) SubmissionData(submit ...string) []Pair {
	return r.collect(func(f *Field) bool {
		if len(submit) == 0 {
			return true
		}
		for _, name := range submit {
			if name == f.Name {
				return true
			}
		}
		return false
	})
}

func (r *Registry) collect(includeSubmit func(*Field) bool) []Pair {
	var pairs []Pair
	for _, f := range r.Fields() {
		if f.Disabled || !f.postable() {
			continue
		}
		if f.IsSubmit() && !includeSubmit(f) {
			continue
		}
		switch f.Kind {
		case KindCheckbox:
			if !f.Checked || f.Owner != "" {
				continue
			}
		case KindRadio:
			if _, ok := f.selectedOption(); !ok {
				continue
			}
		}
		pairs = append(pairs, Pair{Name: f.Name, Value: r.render(f)})
	}
	return pairs
}
