package webforms

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DeltaPreamble is the version record every delta response starts with.
const DeltaPreamble = "1|#||4|"

// DefaultRecoveryBound is how many bytes past a miscounted payload are searched for the
// record terminator.
const DefaultRecoveryBound = 8

const (
	recordHiddenField  = "hiddenField"
	recordFormAction   = "formAction"
	recordUpdatePanel  = "updatePanel"
	recordPageRedirect = "pageRedirect"
	recordError        = "error"
)

type DeltaOptions struct {
	// RecoveryBound is the number of extra bytes scanned for a record terminator when the
	// declared length is off. Zero means DefaultRecoveryBound, negative disables recovery.
	RecoveryBound int
}

func (o DeltaOptions) bound() int {
	if o.RecoveryBound == 0 {
		return DefaultRecoveryBound
	}
	if o.RecoveryBound < 0 {
		return 0
	}
	return o.RecoveryBound
}

type Record struct {
	Kind    string
	Name    string
	Payload string
	// Offset is the position of the record's length field in the response.
	Offset int
	// Recovered is set when the declared length did not line up with the terminator.
	Recovered bool
}

// Delta is a fully parsed delta response. Nothing is committed to a registry until Apply.
type Delta struct {
	Records []Record
	// Action is the new form action, empty when the response did not carry one.
	Action string
	Meta   ScriptMeta
	// Recovered counts the records whose framing needed recovery.
	Recovered int

	fragments []*Fragment
}

// HiddenFields returns the hiddenField records as name/value pairs in stream order.
func (d *Delta) HiddenFields() []Pair {
	var out []Pair
	for _, r := range d.Records {
		if r.Kind == recordHiddenField {
			out = append(out, Pair{Name: r.Name, Value: r.Payload})
		}
	}
	return out
}

type deltaScanner struct {
	body   string
	cursor int
	bound  int
}

func (s *deltaScanner) malformed(offset int, format string, args ...any) error {
	return &MalformedResponseError{
		Offset:  offset,
		Reason:  fmt.Sprintf(format, args...),
		Payload: s.body,
	}
}

// token reads up to the next '|' and moves the cursor past it.
func (s *deltaScanner) token() (string, bool) {
	end := strings.IndexByte(s.body[s.cursor:], '|')
	if end < 0 {
		return "", false
	}
	tok := s.body[s.cursor : s.cursor+end]
	s.cursor += end + 1
	return tok, true
}

// utf16End returns the byte offset reached after consuming length UTF-16 code units from
// start, or -1 when the body ends first.
func utf16End(body string, start, length int) int {
	units := 0
	i := start
	for units < length {
		if i >= len(body) {
			return -1
		}
		r, size := utf8.DecodeRuneInString(body[i:])
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		i += size
	}
	return i
}

// payloadEnd locates the terminator of a payload starting at start with the declared
// length. recovered is set when the declared length was not accurate in bytes.
func (s *deltaScanner) payloadEnd(start, length int) (end int, recovered bool, ok bool) {
	// a length past the end of the body can not be recovered from, and must not reach
	// the offset arithmetic below
	if length < 0 || start > len(s.body) || length > len(s.body)-start {
		return 0, false, false
	}
	end = start + length
	if end < len(s.body) && s.body[end] == '|' {
		return end, false, true
	}

	units := utf16End(s.body, start, length)
	if units >= 0 && units < len(s.body) && s.body[units] == '|' {
		return units, true, true
	}

	for i := end; i <= end+s.bound && i < len(s.body); i++ {
		if s.body[i] == '|' {
			return i, true, true
		}
	}
	return 0, false, false
}

// ParseDelta parses a delta response. It fails with a *ProtocolError when the server
// redirected or reported an error, and with a *MalformedResponseError when the framing is
// broken beyond the recovery bound or no state carrying record was found.
func ParseDelta(body string, opts DeltaOptions) (*Delta, error) {
	if !strings.HasPrefix(body, DeltaPreamble) {
		return nil, &MalformedResponseError{
			Offset:  0,
			Reason:  "missing delta preamble",
			Payload: body,
		}
	}

	s := &deltaScanner{
		body:   body,
		cursor: len(DeltaPreamble),
		bound:  opts.bound(),
	}
	delta := &Delta{}
	var scripts []string
	stateRecords := 0

	for s.cursor < len(body) {
		offset := s.cursor

		lengthStr, ok := s.token()
		if !ok {
			return nil, s.malformed(offset, "truncated record length")
		}
		length, err := strconv.Atoi(strings.TrimSpace(lengthStr))
		if err != nil || length < 0 {
			return nil, s.malformed(offset, "invalid record length '%s'", lengthStr)
		}
		kind, ok := s.token()
		if !ok {
			return nil, s.malformed(offset, "truncated record kind")
		}
		name, ok := s.token()
		if !ok {
			return nil, s.malformed(offset, "truncated record name")
		}

		// the header alone is enough to know the session is gone, a redirect payload is
		// often cut short
		if kind == recordPageRedirect {
			detail := name
			if end, _, ok := s.payloadEnd(s.cursor, length); ok {
				detail = s.body[s.cursor:end]
			}
			return nil, &ProtocolError{Reason: ReasonRedirected, Detail: detail}
		}

		start := s.cursor
		end, recovered, ok := s.payloadEnd(start, length)
		if !ok {
			return nil, s.malformed(
				offset,
				"record '%s' of declared length %d is not terminated within %d bytes",
				kind, length, s.bound,
			)
		}
		s.cursor = end + 1

		record := Record{
			Kind:      kind,
			Name:      name,
			Payload:   body[start:end],
			Offset:    offset,
			Recovered: recovered,
		}
		delta.Records = append(delta.Records, record)
		if recovered {
			delta.Recovered++
		}

		switch {
		case kind == recordHiddenField:
			stateRecords++
		case kind == recordFormAction:
			stateRecords++
			delta.Action = record.Payload
		case kind == recordUpdatePanel:
			fragment, err := ParseFragment(record.Payload)
			if err != nil {
				return nil, s.malformed(offset, "update panel '%s': %s", name, err.Error())
			}
			delta.fragments = append(delta.fragments, fragment)
			delta.Meta.merge(fragment.Meta())
		case kind == recordError:
			return nil, &ProtocolError{
				Reason: ReasonServerError,
				Detail: fmt.Sprintf("%s: %s", name, record.Payload),
			}
		case strings.Contains(strings.ToLower(kind), "script"):
			scripts = append(scripts, record.Payload)
		}
	}

	if stateRecords == 0 {
		return nil, s.malformed(len(body), "no hiddenField or formAction record")
	}

	delta.Meta.merge(ExtractScriptMeta(scripts...))
	return delta, nil
}

// Apply commits the delta to reg: update panels are re-parsed first, then hidden fields
// are written and script metadata is applied.
func (d *Delta) Apply(reg *Registry, opts ParseOptions) {
	opts = opts.withDefaults()
	for _, fragment := range d.fragments {
		fragment.Apply(reg, opts)
	}
	for _, pair := range d.HiddenFields() {
		reg.SetHidden(pair.Name, pair.Value)
	}
	reg.applyMeta(d.Meta, opts.Markers)
}
