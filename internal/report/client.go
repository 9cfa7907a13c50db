package report

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
	"webforms-scraper/internal/components/telemetry"
	"webforms-scraper/internal/webforms"
	"webforms-scraper/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_get  = "client.get"
	report_client_post = "client.post"
)

// Client is the transport of a single session. It owns the session cookie, so it must
// never be shared between sessions.
type Client struct {
	http *resty.Client
	base *url.URL
	tel  telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	tel = telemetry.NewScopedAPI("report_client", tel)

	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	httpClient.SetTimeout(timeout)

	if opts.RequestsPerSecond > 0 {
		// a burst of 1 keeps the round trips of a session strictly paced
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	var output restyutil.Output
	if opts.DumpDir != "" {
		fsOutput, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("create dump dir: %w", err)
		}
		output = fsOutput
	}
	telemetry.InstrumentResty(httpClient, telemetry.NewScopedAPI("http", tel), output)

	return &Client{http: httpClient, base: base, tel: tel}, nil
}

// Resolve resolves ref against the base url.
func (c *Client) Resolve(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(parsed).String()
}

func checkResponse(method, link string, res *resty.Response, err error) error {
	if err != nil {
		return &webforms.TransportError{Method: method, Url: link, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return &webforms.TransportError{Method: method, Url: link, Status: res.StatusCode()}
	}
	return nil
}

// Get fetches link and fails with a *TransportError unless the server answered 200.
func (c *Client) Get(ctx context.Context, link string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(link)
	err = checkResponse(http.MethodGet, link, res, err)
	if err != nil {
		c.tel.ReportBroken(report_client_get, err)
		return nil, err
	}
	return res.Body(), nil
}

// PostForm posts a form encoded body with the given extra headers.
func (c *Client) PostForm(ctx context.Context, link string, form url.Values, headers map[string]string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetFormDataFromValues(form).
		Post(link)
	err = checkResponse(http.MethodPost, link, res, err)
	if err != nil {
		c.tel.ReportBroken(report_client_post, err)
		return nil, err
	}
	return res.Body(), nil
}
