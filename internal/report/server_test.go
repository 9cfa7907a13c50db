package report

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"webforms-scraper/internal/webforms"
)

const (
	reportPath   = "/ReportServer/Pages/Report.aspx?ItemPath=%2fSchemes"
	schemeName   = "P1$txtValue"
	schemeNull   = "P1$cbNull"
	yearName     = "P2$ddValue"
	pageSizeName = "P3$txtValue"
	submitName   = "ReportViewer1$ctl04$ctl00"
	panelName    = "ReportViewer1$ctl09$ReportArea"
	sessionId    = "s3ss10n"
)

const reportPage = `<!DOCTYPE html>
<html><body>
<form method="post" action="./Report.aspx?ItemPath=%2fSchemes" id="form1">
<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="vs1" />
<script type="text/javascript">
Sys.WebForms.PageRequestManager._initialize('ScriptManager1', 'form1', ['tReportViewer1$ctl09$ReportArea','ReportViewer1_ctl09_ReportArea'], [], [], 90, '');
</script>
<label for="P1_txtValue"><span>Scheme Name</span></label>
<div id="P1">
<input type="text" name="P1$txtValue" id="P1_txtValue" value="" />
<input type="checkbox" name="P1$cbNull" id="P1_cbNull" checked="checked" /><label for="P1_cbNull">NULL</label>
</div>
<label for="P2_ddValue"><span>Year</span></label>
<div id="P2">
<select name="P2$ddValue" id="P2_ddValue">
<option value="1" selected="selected">2022</option>
<option value="2">2023</option>
</select>
</div>
<label for="P3_txtValue"><span>Page Size</span></label>
<input type="text" name="P3$txtValue" id="P3_txtValue" value="10" />
<input type="submit" name="ReportViewer1$ctl04$ctl00" id="ReportViewer1_ctl04_ctl00" value="View Report" />
<script type="text/javascript">
Sys.Application.add_init(function() {
    $create(Microsoft.Reporting.WebFormsClient._DropDownParameterInputControl, {"PostBackOnChange":true}, null, null, $get("P2"));
});
</script>
</form>
</body></html>`

const exportXml = `<?xml version="1.0" encoding="utf-8"?>
<Report xmlns="Schemes" Name="Schemes">
<Tablix1>
<Details_Collection>
<Details Scheme="Alpha" Year="2023" Units="12" />
<Details Scheme="Beta" Year="2023" Units="4" />
</Details_Collection>
</Tablix1>
</Report>`

const viewerScript = `Sys.Application.add_init(function() {
    $create(Microsoft.Reporting.WebFormsClient._ReportViewer, {"ExportUrlBase":"\/ReportServer\/Reserved.ReportViewerWebControl.axd?ReportSession=abc&OpType=Export&FileName=Schemes&Format=","ReportAreaId":"ReportViewer1_ctl09"}, null, null, $get("ReportViewer1"));
});`

func deltaRecord(kind, name, payload string) string {
	return fmt.Sprintf("%d|%s|%s|%s|", len(payload), kind, name, payload)
}

// fakeServer imitates a report server closely enough to drive a session through every
// state.
type fakeServer struct {
	*httptest.Server

	mutex sync.Mutex
	posts []url.Values

	page          string
	exportStatus  int
	omitExportUrl bool
	redirect      bool
}

func newFakeServer(t testing.TB) *fakeServer {
	s := &fakeServer{
		page:         reportPage,
		exportStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ReportServer/Pages/Report.aspx", s.handleReport)
	mux.HandleFunc("/ReportServer/Reserved.ReportViewerWebControl.axd", s.handleExport)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) Posts() []url.Values {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]url.Values(nil), s.posts...)
}

func hasSession(r *http.Request) bool {
	cookie, err := r.Cookie("ASP.NET_SessionId")
	return err == nil && cookie.Value == sessionId
}

func (s *fakeServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: sessionId, Path: "/"})
		w.Header().Set("content-type", "text/html; charset=utf-8")
		fmt.Fprint(w, s.page)
		return
	}

	if !hasSession(r) ||
		r.Header.Get("X-MicrosoftAjax") != "Delta=true" ||
		!strings.HasSuffix(r.Header.Get("Referer"), reportPath) {
		http.Error(w, "bad postback", http.StatusBadRequest)
		return
	}
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	s.posts = append(s.posts, r.PostForm)
	s.mutex.Unlock()

	w.Header().Set("content-type", "text/plain; charset=utf-8")
	if s.redirect {
		fmt.Fprint(w, webforms.DeltaPreamble+deltaRecord("pageRedirect", "", "/ReportServer/Error.aspx"))
		return
	}

	records := []string{
		deltaRecord("hiddenField", "__VIEWSTATE", fmt.Sprintf("vs%d", len(s.Posts())+1)),
		deltaRecord("formAction", "", "./Report.aspx?ItemPath=%2fSchemes"),
	}
	if r.PostForm.Get(webforms.EventTarget) == "" && !s.omitExportUrl {
		records = append(records, deltaRecord("scriptStartupBlock", "ScriptContentNoTags", viewerScript))
	}
	fmt.Fprint(w, webforms.DeltaPreamble+strings.Join(records, ""))
}

func (s *fakeServer) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !hasSession(r) || query.Get("OpType") != "Export" || query.Get("ReportSession") != "abc" {
		http.Error(w, "no session", http.StatusForbidden)
		return
	}
	if s.exportStatus != http.StatusOK {
		http.Error(w, "export failed", s.exportStatus)
		return
	}
	if query.Get("Format") != "XML" {
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	w.Header().Set("content-type", "text/xml")
	fmt.Fprint(w, exportXml)
}
