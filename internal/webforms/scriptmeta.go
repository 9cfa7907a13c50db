package webforms

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ControlMeta is what a control's client side initialization call says about it.
type ControlMeta struct {
	ControlId        string
	PostbackRequired bool
	// Separator is empty when the control does not declare one.
	Separator      string
	NullCheckboxId string
}

// ScriptMeta is everything recovered from the embedded scripts of a page or delta.
type ScriptMeta struct {
	Controls      []ControlMeta
	ExportUrlBase string
	ScriptManager string
	UpdatePanel   string
}

func (m *ScriptMeta) merge(other ScriptMeta) {
	m.Controls = append(m.Controls, other.Controls...)
	if other.ExportUrlBase != "" {
		m.ExportUrlBase = other.ExportUrlBase
	}
	if other.ScriptManager != "" {
		m.ScriptManager = other.ScriptManager
	}
	if other.UpdatePanel != "" {
		m.UpdatePanel = other.UpdatePanel
	}
}

var exportUrlRegex = regexp.MustCompile(`"ExportUrlBase"\s*:\s*"((?:[^"\\]|\\.)*)"`)

var pageRequestManagerRegex = regexp.MustCompile(
	`PageRequestManager\._initialize\(\s*'([^']+)'\s*,\s*'[^']*'\s*,\s*\[\s*'([^']*)'`,
)

var jsUnescaper = strings.NewReplacer(
	`\u0026`, "&",
	`\u003d`, "=",
	`\u003c`, "<",
	`\u003e`, ">",
	`\/`, "/",
	`\"`, `"`,
	`\\`, `\`,
)

// ExtractExportUrlBase finds the export url base in a script and un-escapes it.
func ExtractExportUrlBase(script string) (string, bool) {
	groups := exportUrlRegex.FindStringSubmatch(script)
	if len(groups) < 2 {
		return "", false
	}
	return jsUnescaper.Replace(groups[1]), true
}

// ExtractScriptMeta scans scripts for control initialization calls, the export url
// base and the page request manager setup.
func ExtractScriptMeta(scripts ...string) ScriptMeta {
	var meta ScriptMeta
	for _, script := range scripts {
		if exportUrl, ok := ExtractExportUrlBase(script); ok {
			meta.ExportUrlBase = exportUrl
		}

		groups := pageRequestManagerRegex.FindStringSubmatch(script)
		if len(groups) >= 3 {
			meta.ScriptManager = groups[1]
			panel := groups[2]
			// the first character of every panel entry is a flag, not part of the id
			if len(panel) > 1 && (panel[0] == 't' || panel[0] == 'f') {
				panel = panel[1:]
			}
			meta.UpdatePanel = panel
		}

		meta.Controls = append(meta.Controls, extractCreateCalls(script)...)
	}
	return meta
}

const createCall = "$create("

func extractCreateCalls(script string) []ControlMeta {
	var out []ControlMeta
	rest := script
	for {
		start := strings.Index(rest, createCall)
		if start < 0 {
			return out
		}
		rest = rest[start+len(createCall):]

		end := callEnd(rest)
		call := rest[:end]
		rest = rest[end:]

		meta, ok := parseCreateCall(call)
		if ok {
			out = append(out, meta)
		}
	}
}

// callEnd returns the offset of the parenthesis closing a call whose opening
// parenthesis has already been consumed, skipping over string literals.
func callEnd(s string) int {
	depth := 1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

var getCallRegex = regexp.MustCompile(`\$get\(\s*["']([^"']+)["']\s*\)\s*$`)

func parseCreateCall(call string) (ControlMeta, bool) {
	objStart := strings.IndexByte(call, '{')
	if objStart < 0 {
		return ControlMeta{}, false
	}
	objEnd := objStart + 1 + callEnd(call[objStart+1:])
	if objEnd >= len(call) {
		return ControlMeta{}, false
	}

	groups := getCallRegex.FindStringSubmatch(strings.TrimSpace(call[objEnd+1:]))
	if len(groups) < 2 {
		return ControlMeta{}, false
	}

	var props struct {
		PostBackOnChange bool   `json:"PostBackOnChange"`
		ListSeparator    string `json:"ListSeparator"`
		NullCheckBoxId   string `json:"NullCheckBoxId"`
	}
	err := json.Unmarshal([]byte(call[objStart:objEnd+1]), &props)
	if err != nil {
		return ControlMeta{}, false
	}

	return ControlMeta{
		ControlId:        groups[1],
		PostbackRequired: props.PostBackOnChange,
		Separator:        props.ListSeparator,
		NullCheckboxId:   props.NullCheckBoxId,
	}, true
}
