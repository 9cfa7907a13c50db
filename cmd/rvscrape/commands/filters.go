package commands

import "strings"

// cutFilter splits "label=a,b" into its label and values. Values are trimmed, empty
// values are dropped.
func cutFilter(flag string) (string, []string, bool) {
	label, rest, ok := strings.Cut(flag, "=")
	label = strings.TrimSpace(label)
	if !ok || label == "" {
		return "", nil, false
	}
	var values []string
	for _, v := range strings.Split(rest, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			values = append(values, v)
		}
	}
	return label, values, true
}
