package webforms

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const viewerScript = `Sys.Application.add_init(function() {
    $create(Microsoft.Reporting.WebFormsClient._ReportViewer, {"ExportUrlBase":"\/ReportServer\/Reserved.ReportViewerWebControl.axd?ReportSession=ab12\u0026Culture=3081\u0026OpType=Export\u0026FileName=Schemes\u0026ContentDisposition=OnlyHtmlInline\u0026Format=","ReportAreaId":"ReportViewer1_ctl09"}, null, null, $get("ReportViewer1"));
});`

func TestExtractExportUrlBase(t *testing.T) {
	exportUrl, ok := ExtractExportUrlBase(viewerScript)
	require.True(t, ok)
	require.Equal(
		t,
		"/ReportServer/Reserved.ReportViewerWebControl.axd?ReportSession=ab12&Culture=3081&OpType=Export&FileName=Schemes&ContentDisposition=OnlyHtmlInline&Format=",
		exportUrl,
	)

	_, ok = ExtractExportUrlBase(`var x = {"ReportAreaId":"a"};`)
	require.False(t, ok)
}

func TestExtractScriptMeta(t *testing.T) {
	scripts := []string{
		`Sys.WebForms.PageRequestManager._initialize('ctl00$ScriptManager1', 'aspnetForm', ['fctl00$Main$Panel','ctl00_Main_Panel'], [], [], 90, 'ctl00');`,
		`Sys.Application.add_init(function() {
    $create(Microsoft.Reporting.WebFormsClient._DropDownParameterInputControl, {"PostBackOnChange":true,"Label":"a (b) [c]"}, null, null, $get("P1"));
});
Sys.Application.add_init(function() {
    $create(Microsoft.Reporting.WebFormsClient._MultiValueParameterInputControl, {"ListSeparator":"; ","NullCheckBoxId":"P2_cbNull","PostBackOnChange":false}, {"change":handler}, null, $get('P2'));
});
Sys.Application.add_init(function() {
    $create(Broken, {"PostBackOnChange":}, null, null, $get("P3"));
});`,
		viewerScript,
	}

	meta := ExtractScriptMeta(scripts...)

	require.Equal(t, "ctl00$ScriptManager1", meta.ScriptManager)
	require.Equal(t, "ctl00$Main$Panel", meta.UpdatePanel)
	require.NotEmpty(t, meta.ExportUrlBase)

	expected := []ControlMeta{
		{ControlId: "P1", PostbackRequired: true},
		{ControlId: "P2", Separator: "; ", NullCheckboxId: "P2_cbNull"},
		{ControlId: "ReportViewer1"},
	}
	require.Empty(t, cmp.Diff(expected, meta.Controls))
}

func TestScriptMetaMerge(t *testing.T) {
	meta := ScriptMeta{ExportUrlBase: "a", ScriptManager: "sm"}
	meta.merge(ScriptMeta{
		Controls:      []ControlMeta{{ControlId: "x"}},
		ExportUrlBase: "b",
	})

	require.Equal(t, "b", meta.ExportUrlBase)
	require.Equal(t, "sm", meta.ScriptManager)
	require.Len(t, meta.Controls, 1)
}
