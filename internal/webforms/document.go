package webforms

import (
	"bytes"
	"net/url"
	"strings"
	"webforms-scraper/lib/htmlutil"
	"webforms-scraper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const defaultFormSelector = "form#form1"

type ParseOptions struct {
	// FormSelector locates the form of interest. When empty, "form#form1" is tried first
	// and then the first form carrying an action.
	FormSelector string
	Markers      Markers
	// DefaultSeparator overrides DefaultListSeparator for fields without a declared one.
	DefaultSeparator string
}

func DefaultParseOptions() ParseOptions {
	return ParseOptions{Markers: DefaultMarkers()}
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.Markers.HiddenIndices == "" {
		o.Markers = DefaultMarkers()
	}
	return o
}

// Document is the result of parsing a full page.
type Document struct {
	Registry *Registry
	Action   string
	Method   string
	Meta     ScriptMeta
	// Labels maps the dom id every <label for=...> points at to its text.
	Labels map[string]string
}

func findForm(doc *goquery.Document, selector string) *goquery.Selection {
	if selector != "" {
		return doc.Find(selector).First()
	}
	form := doc.Find(defaultFormSelector).First()
	if form.Length() > 0 {
		return form
	}
	return doc.Find("form[action]").First()
}

// ParseDocument builds a fresh registry out of a full page. base is used to resolve the
// form's action.
func ParseDocument(body []byte, base *url.URL, opts ParseOptions) (*Document, error) {
	opts = opts.withDefaults()

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return nil, &ProtocolError{Reason: ReasonNoForm, Detail: err.Error()}
	}

	form := findForm(doc, opts.FormSelector)
	if form.Length() == 0 {
		return nil, &ProtocolError{Reason: ReasonNoForm, Detail: opts.FormSelector}
	}

	action, _ := form.Attr("action")
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "")))
	if method == "" {
		method = "POST"
	}

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})

	reg := NewRegistry()
	meta, labels := extractControls(reg, form, scripts, opts)

	return &Document{
		Registry: reg,
		Action:   htmlutil.ResolveUrl(base, action),
		Method:   method,
		Meta:     meta,
		Labels:   labels,
	}, nil
}

// Fragment is a parsed update panel, ready to be merged into a registry.
type Fragment struct {
	doc *goquery.Document
}

// ParseFragment parses the html of an update panel. Parsing is separated from Apply so
// that a delta can be fully validated before anything is committed.
func ParseFragment(fragment string) (*Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	return &Fragment{doc: doc}, nil
}

// Meta returns the script metadata embedded in the fragment.
func (f *Fragment) Meta() ScriptMeta {
	return ExtractScriptMeta(f.scripts()...)
}

func (f *Fragment) scripts() []string {
	var scripts []string
	f.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})
	return scripts
}

// Apply registers every control of the fragment, overwriting controls of the same name.
func (f *Fragment) Apply(reg *Registry, opts ParseOptions) ScriptMeta {
	meta, _ := extractControls(reg, f.doc.Selection, f.scripts(), opts.withDefaults())
	return meta
}

// extractControls walks inputs, selects, scripts and labels below root, registering every
// control in reg. It returns the script metadata and the label texts keyed by dom id.
func extractControls(reg *Registry, root *goquery.Selection, scripts []string, opts ParseOptions) (ScriptMeta, map[string]string) {
	m := opts.Markers
	var names []string
	radios := map[string]*Field{}
	radioIds := map[string][]string{}

	root.Find("input").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		name := s.AttrOr("name", "")
		if typ == "" || typ == "image" || name == "" {
			return
		}
		id := s.AttrOr("id", "")
		_, disabled := s.Attr("disabled")
		_, readonly := s.Attr("readonly")
		_, checked := s.Attr("checked")
		value, hasValue := s.Attr("value")

		switch typ {
		case "radio":
			if !hasValue {
				value = "on"
			}
			f, ok := radios[name]
			if !ok {
				f = &Field{
					Name:      name,
					DomId:     id,
					Kind:      KindRadio,
					InputType: typ,
					Disabled:  disabled,
					ReadOnly:  readonly,
				}
				radios[name] = f
				names = append(names, name)
			}
			f.Options = append(f.Options, Option{Value: value, Label: value, Selected: checked})
			radioIds[name] = append(radioIds[name], id)
			if checked {
				f.Value = value
			}
		case "checkbox":
			if !hasValue {
				value = "on"
			}
			reg.Register(&Field{
				Name:      name,
				DomId:     id,
				Kind:      KindCheckbox,
				InputType: typ,
				Value:     value,
				Checked:   checked,
				Disabled:  disabled,
				ReadOnly:  readonly,
			})
			names = append(names, name)
		default:
			reg.Register(&Field{
				Name:      name,
				DomId:     id,
				Kind:      KindText,
				InputType: typ,
				Value:     value,
				Disabled:  disabled,
				ReadOnly:  readonly,
			})
			names = append(names, name)
		}
	})

	root.Find("select").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			return
		}
		_, disabled := s.Attr("disabled")
		f := &Field{
			Name:      name,
			DomId:     s.AttrOr("id", ""),
			Kind:      KindSelect,
			InputType: "select",
			Disabled:  disabled,
		}
		s.Find("option").Each(func(_ int, o *goquery.Selection) {
			label := htmlutil.SelectionText(o)
			value, ok := o.Attr("value")
			if !ok {
				value = label
			}
			_, selected := o.Attr("selected")
			f.Options = append(f.Options, Option{Value: value, Label: label, Selected: selected})
		})
		f.Value = f.render()
		reg.Register(f)
		names = append(names, name)
	})

	for _, f := range radios {
		reg.Register(f)
	}

	meta := ExtractScriptMeta(scripts...)
	if opts.DefaultSeparator != "" {
		for _, name := range names {
			if f, ok := reg.fields[name]; ok && f.ListSeparator == "" {
				f.ListSeparator = opts.DefaultSeparator
			}
		}
	}
	reg.applyMeta(meta, m)

	labels := map[string]string{}
	var labelIds []string
	root.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("for", "")
		if id == "" {
			return
		}
		if _, seen := labels[id]; !seen {
			labelIds = append(labelIds, id)
		}
		labels[id] = htmlutil.SelectionText(s)
	})

	consumed := reg.resolveComposites(names, labels, m)

	for name, ids := range radioIds {
		f := radios[name]
		for i, id := range ids {
			if text, ok := labels[id]; ok && text != "" {
				f.Options[i].Label = text
				consumed[id] = true
			}
		}
	}

	for _, id := range labelIds {
		if consumed[id] {
			continue
		}
		if !isNullLabel(id, labels[id], m) {
			continue
		}
		consumed[id] = true
		reg.linkNullCheckbox(id, m)
	}

	for _, id := range labelIds {
		text := labels[id]
		if consumed[id] || text == "" {
			continue
		}
		name, ok := reg.byId[id]
		if !ok {
			continue
		}
		reg.SetLabel(name, text)
	}

	return meta, labels
}

func isNullLabel(id, text string, m Markers) bool {
	return strings.HasSuffix(id, m.NullSuffix) ||
		textutil.NormalizeLabel(text) == textutil.NormalizeLabel(m.NullLabel)
}

// linkNullCheckbox pairs the checkbox with dom id checkboxId to the value field sharing its
// prefix.
func (r *Registry) linkNullCheckbox(checkboxId string, m Markers) {
	cbName, ok := r.byId[checkboxId]
	if !ok {
		return
	}
	prefix := strings.TrimSuffix(checkboxId, m.NullSuffix)
	for _, suffix := range m.ValueSuffixes {
		name, ok := r.byId[prefix+suffix]
		if !ok || name == cbName {
			continue
		}
		r.fields[name].NullCheckbox = cbName
		return
	}
}

// applyMeta copies control metadata onto every field belonging to the control, that is
// every field whose dom id is the control id or starts with it followed by "_".
func (r *Registry) applyMeta(meta ScriptMeta, m Markers) {
	for _, control := range meta.Controls {
		prefix := control.ControlId + "_"
		for _, f := range r.fields {
			if f.DomId != control.ControlId && !strings.HasPrefix(f.DomId, prefix) {
				continue
			}
			if control.PostbackRequired {
				f.RequiresPostback = true
			}
			if control.Separator != "" {
				f.ListSeparator = control.Separator
			}
			if f.Composite != nil {
				f.Value = r.renderComposite(f)
			}
		}
		if control.NullCheckboxId != "" {
			r.linkNullCheckbox(control.NullCheckboxId, m)
		}
	}
}
