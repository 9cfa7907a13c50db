package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"webforms-scraper/internal/components/assert"
	"webforms-scraper/internal/components/telemetry"
	"webforms-scraper/internal/webforms"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/report")

const (
	report_session_load      = "session.load"
	report_session_set_label = "session.set-label"
	report_session_postback  = "session.postback"
	report_session_submit    = "session.submit"
	report_session_retrieve  = "session.retrieve"
)

type State int

const (
	StateNew State = iota
	StateLoaded
	StateUpdated
	StateSubmitted
	StateRetrieved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLoaded:
		return "loaded"
	case StateUpdated:
		return "updated"
	case StateSubmitted:
		return "submitted"
	case StateRetrieved:
		return "retrieved"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrSessionFailed is returned by every call on a session that has already failed.
	ErrSessionFailed = errors.New("session failed")
	// ErrInvalidState is returned by calls made out of protocol order.
	ErrInvalidState = errors.New("invalid session state")
)

// Session drives one report through load, filter postbacks, submission and export.
// It is not safe for concurrent use, independent sessions may run concurrently.
type Session struct {
	client *Client
	report ReportConfig
	opts   Options
	tel    telemetry.API

	state State
	err   error

	registry      *webforms.Registry
	actionUrl     string
	exportUrlBase string
	scriptManager string
	updatePanel   string
	lastBody      []byte
	payload       []byte
	payloadFormat string
}

func NewSession(client *Client, report ReportConfig, opts Options, tel telemetry.API) *Session {
	assert.NotNil(client)
	assert.NotNil(tel)
	return &Session{
		client: client,
		report: report,
		opts:   opts,
		tel:    telemetry.NewScopedAPI(fmt.Sprintf("report(%s)", report.Name), tel),
		state:  StateNew,
	}
}

func (s *Session) State() State {
	return s.state
}

// Err returns the failure that moved the session into StateFailed.
func (s *Session) Err() error {
	return s.err
}

// Registry is nil until the session is loaded.
func (s *Session) Registry() *webforms.Registry {
	return s.registry
}

func (s *Session) ActionUrl() string {
	return s.actionUrl
}

// ExportUrlBase is empty until the server discloses it.
func (s *Session) ExportUrlBase() string {
	return s.exportUrlBase
}

func (s *Session) fail(id string, err error) error {
	s.state = StateFailed
	s.err = err
	s.tel.ReportBroken(id, err)
	return err
}

func (s *Session) expect(states ...State) error {
	if s.state == StateFailed {
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.err)
	}
	for _, state := range states {
		if s.state == state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
}

// Load fetches the report page and builds the field registry from it.
func (s *Session) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:Load")
	defer span.End()

	err := s.expect(StateNew)
	if err != nil {
		return err
	}

	link := s.client.Resolve(s.report.Path)
	body, err := s.client.Get(ctx, link)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch report page")
		return s.fail(report_session_load, fmt.Errorf("fetch: %w", err))
	}
	s.lastBody = body

	base, err := url.Parse(link)
	if err != nil {
		return s.fail(report_session_load, fmt.Errorf("parse url: %w", err))
	}
	doc, err := webforms.ParseDocument(body, base, s.report.parseOptions())
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse report page")
		return s.fail(report_session_load, fmt.Errorf("parse document: %w", err))
	}

	s.registry = doc.Registry
	s.actionUrl = doc.Action
	s.exportUrlBase = doc.Meta.ExportUrlBase
	s.scriptManager = doc.Meta.ScriptManager
	s.updatePanel = doc.Meta.UpdatePanel
	s.state = StateLoaded

	span.SetAttributes(
		attribute.Int("fields", doc.Registry.Len()),
		attribute.Int("labels", doc.Registry.LabelCount()),
	)
	s.tel.ReportDebug(
		"loaded report page",
		"action", s.actionUrl,
		"fields", doc.Registry.Len(),
		"labels", doc.Registry.LabelCount(),
	)
	return nil
}

// SetByLabel sets the field with the given label and posts back when the server needs
// to see the change before anything else is set. A lookup miss leaves the session as is.
func (s *Session) SetByLabel(ctx context.Context, label string, values ...string) (bool, error) {
	ctx, span := tracer.Start(ctx, "session:SetByLabel")
	defer span.End()
	span.SetAttributes(attribute.String("label", label))

	err := s.expect(StateLoaded, StateUpdated)
	if err != nil {
		return false, err
	}

	f, postback, err := s.registry.SetByLabel(label, values...)
	if err != nil {
		s.tel.ReportWarning(report_session_set_label, err)
		return false, err
	}
	if !postback {
		return false, nil
	}

	err = s.postback(ctx, f.Name, f.Name, false)
	if err != nil {
		return true, err
	}
	s.state = StateUpdated
	return true, nil
}

// ApplyFilters sets every configured filter in order.
func (s *Session) ApplyFilters(ctx context.Context) error {
	for _, filter := range s.report.Filters {
		_, err := s.SetByLabel(ctx, filter.Label, filter.Values...)
		if err != nil {
			return fmt.Errorf("filter '%s': %w", filter.Label, err)
		}
	}
	return nil
}

// submitControl is the configured submit control, else the first one of the page.
func (s *Session) submitControl() string {
	if s.report.SubmitControl != "" {
		return s.report.SubmitControl
	}
	submits := s.registry.SubmitControls()
	if len(submits) == 0 {
		return ""
	}
	return submits[0].Name
}

// Submit sets the page size and posts the whole form as a submission. The server must
// disclose the export url in its answer.
func (s *Session) Submit(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:Submit")
	defer span.End()

	err := s.expect(StateLoaded, StateUpdated)
	if err != nil {
		return err
	}

	if s.report.PageSizeLabel != "" && s.report.PageSize != "" {
		_, _, err = s.registry.SetByLabel(s.report.PageSizeLabel, s.report.PageSize)
		if err != nil {
			s.tel.ReportWarning(report_session_submit, fmt.Errorf("page size: %w", err))
			return err
		}
	}

	err = s.postback(ctx, "", s.submitControl(), true)
	if err != nil {
		return err
	}
	if s.exportUrlBase == "" {
		span.SetStatus(codes.Error, "no export url")
		return s.fail(report_session_submit, &webforms.ProtocolError{Reason: webforms.ReasonNoExportUrl})
	}

	s.state = StateSubmitted
	return nil
}

// postback posts the registry to the current action as an asynchronous partial update and
// merges the delta the server answers with.
func (s *Session) postback(ctx context.Context, target, trigger string, submission bool) error {
	ctx, span := tracer.Start(ctx, "session:postback")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", target),
		attribute.Bool("submission", submission),
	)

	var pairs []webforms.Pair
	if submission {
		pairs = s.registry.SubmissionData(trigger)
	} else {
		pairs = s.registry.PostData()
	}
	form := webforms.Values(pairs)
	form.Set(webforms.EventTarget, target)
	form.Set(webforms.AsyncPost, "true")
	if s.scriptManager != "" {
		form.Set(s.scriptManager, fmt.Sprintf("%s|%s", s.updatePanel, trigger))
	}

	body, err := s.client.PostForm(ctx, s.actionUrl, form, map[string]string{
		"X-MicrosoftAjax":  "Delta=true",
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          s.actionUrl,
		"Cache-Control":    "no-cache",
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to post")
		return s.fail(report_session_postback, fmt.Errorf("post: %w", err))
	}
	s.lastBody = body

	delta, err := webforms.ParseDelta(string(body), s.opts.Delta)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse delta")
		return s.fail(report_session_postback, fmt.Errorf("parse delta: %w", err))
	}
	if delta.Recovered > 0 {
		for _, r := range delta.Records {
			if r.Recovered {
				s.tel.ReportWarning(
					report_session_postback,
					"recovered delta frame",
					"kind", r.Kind,
					"name", r.Name,
					"offset", r.Offset,
				)
			}
		}
	}

	delta.Apply(s.registry, s.report.parseOptions())
	if delta.Action != "" {
		s.actionUrl = resolveAgainst(s.actionUrl, delta.Action)
	}
	if delta.Meta.ExportUrlBase != "" {
		s.exportUrlBase = delta.Meta.ExportUrlBase
	}
	if delta.Meta.ScriptManager != "" {
		s.scriptManager = delta.Meta.ScriptManager
	}
	if delta.Meta.UpdatePanel != "" {
		s.updatePanel = delta.Meta.UpdatePanel
	}

	s.tel.ReportDebug("postback", "target", target, "records", len(delta.Records))
	return nil
}

func resolveAgainst(current, ref string) string {
	base, err := url.Parse(current)
	if err != nil {
		return ref
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// Retrieve downloads the export in the given format, an uppercase token like "XML".
func (s *Session) Retrieve(ctx context.Context, format string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "session:Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("format", format))

	err := s.expect(StateSubmitted, StateRetrieved)
	if err != nil {
		return nil, err
	}

	link := resolveAgainst(s.actionUrl, s.exportUrlBase+format)
	body, err := s.client.Get(ctx, link)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch export")
		return nil, s.fail(report_session_retrieve, fmt.Errorf("fetch export: %w", err))
	}

	s.lastBody = body
	s.payload = body
	s.payloadFormat = format
	s.state = StateRetrieved
	s.tel.ReportCount(report_session_retrieve, int64(len(body)))
	return body, nil
}

// ExportedPayload returns the payload already retrieved in the given format, downloading
// it first when needed.
func (s *Session) ExportedPayload(ctx context.Context, format string) ([]byte, error) {
	if s.state == StateRetrieved && s.payloadFormat == format {
		return s.payload, nil
	}
	return s.Retrieve(ctx, format)
}

// SaveRaw writes the body of the last response to path.
func (s *Session) SaveRaw(path string) error {
	if s.lastBody == nil {
		return fmt.Errorf("%w: nothing was received yet", ErrInvalidState)
	}
	return os.WriteFile(path, s.lastBody, 0644)
}

// Run goes through the whole protocol with the configured filters and format.
func (s *Session) Run(ctx context.Context) ([]byte, error) {
	err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	err = s.ApplyFilters(ctx)
	if err != nil {
		return nil, err
	}
	err = s.Submit(ctx)
	if err != nil {
		return nil, err
	}
	return s.ExportedPayload(ctx, s.report.format())
}
