package webforms

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func record(kind, name, payload string) string {
	return fmt.Sprintf("%d|%s|%s|%s|", len(payload), kind, name, payload)
}

func delta(records ...string) string {
	return DeltaPreamble + strings.Join(records, "")
}

func TestParseDeltaHiddenFieldUpdatesOnlyThatField(t *testing.T) {
	doc := parseFixture(t)
	reg := doc.Registry
	before := renderedValues(reg)

	d, err := ParseDelta(delta(record("hiddenField", "__VIEWSTATE", "vs2")), DeltaOptions{})
	require.NoError(t, err)
	require.Equal(t, []Pair{{Name: "__VIEWSTATE", Value: "vs2"}}, d.HiddenFields())
	require.Zero(t, d.Recovered)

	d.Apply(reg, DefaultParseOptions())

	after := renderedValues(reg)
	require.Equal(t, "vs2", after["__VIEWSTATE"])
	before["__VIEWSTATE"] = "vs2"
	require.Empty(t, cmp.Diff(before, after))
	require.Equal(t, len(before), reg.Len())
}

func TestParseDeltaPageRedirect(t *testing.T) {
	_, err := ParseDelta("1|#||4|76|pageRedirect||/ReportServer/Error.aspx", DeltaOptions{})

	var protocolErr *ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	require.Equal(t, ReasonRedirected, protocolErr.Reason)

	_, err = ParseDelta(delta(record("pageRedirect", "", "/login.aspx")), DeltaOptions{})
	require.True(t, errors.As(err, &protocolErr))
	require.Equal(t, "/login.aspx", protocolErr.Detail)
}

func TestParseDeltaServerError(t *testing.T) {
	_, err := ParseDelta(delta(record("error", "500", "The report parameter is invalid")), DeltaOptions{})

	var protocolErr *ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	require.Equal(t, ReasonServerError, protocolErr.Reason)
	require.Contains(t, protocolErr.Detail, "The report parameter is invalid")
}

func TestParseDeltaMalformed(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "no preamble", body: "<html>session expired</html>"},
		{name: "no state records", body: delta(record("scriptBlock", "ScriptPath", "/a.js"))},
		{name: "preamble only", body: DeltaPreamble},
		{name: "bad length", body: DeltaPreamble + "x|hiddenField|a|b|"},
		{name: "truncated header", body: DeltaPreamble + "3|hiddenField"},
		{name: "truncated payload", body: DeltaPreamble + "30|hiddenField|a|short"},
		{name: "length past the body", body: DeltaPreamble + "9223372036854775800|hiddenField|a|b|"},
		{name: "length longer than the rest", body: DeltaPreamble + "64|hiddenField|a|b|"},
	}

	for _, test := range testCases {
		var err error
		require.NotPanics(t, func() {
			_, err = ParseDelta(test.body, DeltaOptions{})
		}, test.name)
		var malformed *MalformedResponseError
		require.True(t, errors.As(err, &malformed), test.name)
		require.Equal(t, test.body, malformed.Payload, test.name)
	}
}

func TestParseDeltaRecovery(t *testing.T) {
	// declared two bytes short, the terminator is found by scanning forward
	body := DeltaPreamble +
		"1|hiddenField|__VIEWSTATE|abc|" +
		record("hiddenField", "__EVENTVALIDATION", "ev2")

	d, err := ParseDelta(body, DeltaOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, d.Recovered)
	require.True(t, d.Records[0].Recovered)
	require.False(t, d.Records[1].Recovered)
	require.Equal(t, []Pair{
		{Name: "__VIEWSTATE", Value: "abc"},
		{Name: "__EVENTVALIDATION", Value: "ev2"},
	}, d.HiddenFields())
}

func TestParseDeltaRedirectWithBadLength(t *testing.T) {
	body := DeltaPreamble + "9223372036854775800|pageRedirect||/Error.aspx|"

	var err error
	require.NotPanics(t, func() {
		_, err = ParseDelta(body, DeltaOptions{RecoveryBound: 1 << 30})
	})
	var protocolErr *ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	require.Equal(t, ReasonRedirected, protocolErr.Reason)
}

func TestParseDeltaRecoveryStopsAtInnerPipe(t *testing.T) {
	// the real payload of A is "ab|0|hiddenField|B|", declared one byte long: the scan
	// stops at the first '|' and the rest of the payload is read as a record of its own
	body := DeltaPreamble +
		"1|hiddenField|A|ab|0|hiddenField|B||" +
		record("formAction", "", "./Report.aspx")

	d, err := ParseDelta(body, DeltaOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, d.Recovered)
	require.Equal(t, []Pair{
		{Name: "A", Value: "ab"},
		{Name: "B", Value: ""},
	}, d.HiddenFields())
	require.True(t, d.Records[0].Recovered)
	require.False(t, d.Records[1].Recovered)

	// leftovers that do not frame as a record fail the whole parse
	body = DeltaPreamble +
		"1|hiddenField|A|abc|de|" +
		record("formAction", "", "./Report.aspx")
	_, err = ParseDelta(body, DeltaOptions{})
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
}

func TestParseDeltaRecoveryBound(t *testing.T) {
	payload := strings.Repeat("x", 20)
	body := DeltaPreamble + "2|hiddenField|__VIEWSTATE|" + payload + "|"

	_, err := ParseDelta(body, DeltaOptions{})
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, len(DeltaPreamble), malformed.Offset)

	d, err := ParseDelta(body, DeltaOptions{RecoveryBound: 32})
	require.NoError(t, err)
	require.Equal(t, payload, d.Records[0].Payload)

	_, err = ParseDelta(DeltaPreamble+"1|hiddenField|a|ab|", DeltaOptions{RecoveryBound: -1})
	require.True(t, errors.As(err, &malformed))
}

func TestParseDeltaUtf16Length(t *testing.T) {
	// "é€" is 5 bytes but 2 UTF-16 code units
	body := DeltaPreamble + "2|hiddenField|__LABEL|é€|" + record("formAction", "", "./Report.aspx")

	d, err := ParseDelta(body, DeltaOptions{})
	require.NoError(t, err)
	require.Equal(t, "é€", d.Records[0].Payload)
	require.True(t, d.Records[0].Recovered)
	require.Equal(t, "./Report.aspx", d.Action)
}

func TestParseDeltaScripts(t *testing.T) {
	body := delta(
		record("hiddenField", "__VIEWSTATE", "vs3"),
		record("formAction", "", "./Report.aspx?ReportPath=%2fSchemes"),
		record("scriptStartupBlock", "ScriptContentNoTags", viewerScript),
		record("arrayDeclaration", "Page_Validators", "x"),
	)

	d, err := ParseDelta(body, DeltaOptions{})
	require.NoError(t, err)
	require.Equal(t, "./Report.aspx?ReportPath=%2fSchemes", d.Action)
	require.True(t, strings.HasPrefix(d.Meta.ExportUrlBase, "/ReportServer/Reserved.ReportViewerWebControl.axd?"))
	require.Contains(t, d.Meta.ExportUrlBase, "&OpType=Export&")
	require.Len(t, d.Records, 4)
}

func TestParseDeltaUpdatePanel(t *testing.T) {
	doc := parseFixture(t)
	reg := doc.Registry

	fragment := `<div id="ReportViewer1_ctl04_ctl05">
<label for="ReportViewer1_ctl04_ctl05_ddValue"><span>Year</span></label>
<select name="ReportViewer1$ctl04$ctl05$ddValue" id="ReportViewer1_ctl04_ctl05_ddValue">
<option value="1">2022</option>
<option selected="selected" value="2">2023</option>
<option value="3">2024</option>
</select>
</div>
<div id="ReportViewer1_ctl04_ctl17">
<label for="ReportViewer1_ctl04_ctl17_ddValue"><span>Scheme Type</span></label>
<select name="ReportViewer1$ctl04$ctl17$ddValue" id="ReportViewer1_ctl04_ctl17_ddValue">
<option value="1">Water</option>
<option value="2">Sewer</option>
</select>
</div>`

	body := delta(
		record("updatePanel", "ReportViewer1_ctl04", fragment),
		record("hiddenField", "__VIEWSTATE", "vs4"),
		record("scriptStartupBlock", "ScriptContentNoTags", `$create(Microsoft.Reporting.WebFormsClient._DropDownParameterInputControl, {"PostBackOnChange":true}, null, null, $get("ReportViewer1_ctl04_ctl17"));`),
	)

	d, err := ParseDelta(body, DeltaOptions{})
	require.NoError(t, err)

	// nothing is committed before Apply
	value, err := reg.Value(yearField)
	require.NoError(t, err)
	require.Equal(t, "1", value)

	d.Apply(reg, DefaultParseOptions())

	value, err = reg.Value(yearField)
	require.NoError(t, err)
	require.Equal(t, "2", value)

	year, err := reg.ByLabel("year")
	require.NoError(t, err)
	require.Len(t, year.Options, 3)

	schemeType, err := reg.ByLabel("scheme type")
	require.NoError(t, err)
	require.True(t, schemeType.RequiresPostback)
	require.Equal(t, 5, reg.LabelCount())

	value, err = reg.Value("__VIEWSTATE")
	require.NoError(t, err)
	require.Equal(t, "vs4", value)
}
