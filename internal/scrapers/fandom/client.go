// Package fandom talks to the MediaWiki Action API of a Fandom wiki.
//
// Fandom sits behind Cloudflare, every request goes through the challenge bypass
// transport and a challenge page served instead of JSON throws away the session
// before retrying.
package fandom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lodgemirror/internal/components/assert"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/lib/restyutil"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_query            = "client.query"
	report_client_reset            = "client.reset"
	report_client_wikitext         = "client.wikitext"
	report_client_category_members = "client.category-members"
)

var (
	// ErrNoResponse means every attempt of a query failed.
	ErrNoResponse = errors.New("no response")
	// ErrMalformedResponse means the response was JSON but not in the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrAPI means the API answered with an error object.
	ErrAPI = errors.New("api error")
)

const (
	DefaultApiUrl     = "https://pokemon-masters-ex-game.fandom.com/api.php"
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
	DefaultPace       = 500 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	categoryMemberLimit = "500"
)

type ClientOptions struct {
	ApiUrl     string
	MaxRetries int
	// RetryDelay is multiplied by the number of the attempt that failed.
	RetryDelay time.Duration
	// Pace is the minimum time between two requests.
	Pace      time.Duration
	Timeout   time.Duration
	UserAgent string
	// PlainTransport skips the challenge bypass transport, for endpoints that
	// are not behind Cloudflare.
	PlainTransport bool
	// Dump receives every http exchange when set.
	Dump restyutil.Output
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.ApiUrl == "" {
		o.ApiUrl = DefaultApiUrl
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Pace <= 0 {
		o.Pace = DefaultPace
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Client is not safe for concurrent use, a run makes its requests one at a time.
type Client struct {
	opts    ClientOptions
	apiUrl  *url.URL
	http    *resty.Client
	limiter *rate.Limiter
	dumped  *atomic.Uint64
	tel     telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("fandom", tel)
	opts = opts.withDefaults()

	apiUrl, err := url.Parse(opts.ApiUrl)
	if err != nil {
		return nil, err
	}
	if apiUrl.Scheme == "" || apiUrl.Host == "" {
		return nil, fmt.Errorf("api url must be absolute: %q", opts.ApiUrl)
	}

	c := &Client{
		opts:    opts,
		apiUrl:  apiUrl,
		limiter: rate.NewLimiter(rate.Every(opts.Pace), 1),
		dumped:  &atomic.Uint64{},
		tel:     tel,
	}
	c.http, err = c.newHttpClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) newHttpClient() (*resty.Client, error) {
	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if !c.opts.PlainTransport {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeader("user-agent", c.opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.apiUrl.Hostname()))
	httpClient.SetTimeout(c.opts.Timeout)

	// the limiter outlives the http client so a reset does not skip the pacing
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return c.limiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, c.tel)
	if c.opts.Dump != nil {
		restyutil.Record(httpClient, c.opts.Dump, c.dumped)
	}
	return httpClient, nil
}

// Reset replaces the http session, dropping every cookie the wiki (or the
// challenge) has handed out.
func (c *Client) Reset() error {
	httpClient, err := c.newHttpClient()
	if err != nil {
		c.tel.ReportBroken(report_client_reset, err)
		return err
	}
	c.http = httpClient
	c.tel.ReportDebug(report_client_reset)
	return nil
}

type attemptError struct {
	challenge bool
	err       error
}

func (e attemptError) Error() string {
	return e.err.Error()
}

func (e attemptError) Unwrap() error {
	return e.err
}

// Query performs a GET against the api with the given parameters and returns
// the JSON body. Failed attempts are retried up to MaxRetries times in total
// with a growing delay in between.
func (c *Client) Query(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			err := sleep(ctx, c.opts.RetryDelay*time.Duration(attempt))
			if err != nil {
				return nil, err
			}
		}

		body, err := c.attempt(ctx, params)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		c.tel.ReportWarning(
			report_client_query,
			err,
			telemetry.KV{Key: "attempt", Value: fmt.Sprintf("%d/%d", attempt+1, c.opts.MaxRetries)},
		)

		var attemptErr attemptError
		if errors.As(err, &attemptErr) && attemptErr.challenge && attempt < c.opts.MaxRetries-1 {
			err = c.Reset()
			if err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrNoResponse, c.opts.MaxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.apiUrl.String())
	if err != nil {
		return nil, attemptError{err: fmt.Errorf("request: %w", err)}
	}

	if res.StatusCode() != http.StatusOK {
		return nil, attemptError{err: fmt.Errorf("http %s", res.Status())}
	}

	contentType := res.Header().Get("content-type")
	if !strings.Contains(contentType, "json") {
		return nil, attemptError{
			challenge: true,
			err: fmt.Errorf(
				"non-json response (%s) titled %q",
				contentType, pageTitle(res.Body()),
			),
		}
	}

	if !json.Valid(res.Body()) {
		return nil, attemptError{err: fmt.Errorf("invalid json body")}
	}
	return json.RawMessage(res.Body()), nil
}

// pageTitle is the <title> of an html page, challenge pages name themselves there.
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *apiError) err() error {
	info := e.Info
	if info == "" {
		info = "unknown"
	}
	if e.Code == "" {
		return fmt.Errorf("%w: %s", ErrAPI, info)
	}
	return fmt.Errorf("%w: %s: %s", ErrAPI, e.Code, info)
}

type parseResponse struct {
	Error *apiError `json:"error"`
	Parse *struct {
		Title    string `json:"title"`
		Wikitext *struct {
			Content *string `json:"*"`
		} `json:"wikitext"`
	} `json:"parse"`
}

// Wikitext returns the raw markup of a page.
func (c *Client) Wikitext(ctx context.Context, page string) (string, error) {
	body, err := c.Query(ctx, map[string]string{
		"action": "parse",
		"page":   page,
		"prop":   "wikitext",
		"format": "json",
	})
	if err != nil {
		return "", err
	}

	var res parseResponse
	err = json.Unmarshal(body, &res)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrMalformedResponse, page, err)
		c.tel.ReportWarning(report_client_wikitext, err)
		return "", err
	}
	if res.Error != nil {
		err = fmt.Errorf("%s: %w", page, res.Error.err())
		c.tel.ReportWarning(report_client_wikitext, err)
		return "", err
	}
	if res.Parse == nil || res.Parse.Wikitext == nil || res.Parse.Wikitext.Content == nil {
		err = fmt.Errorf("%w: %s: missing parse.wikitext", ErrMalformedResponse, page)
		c.tel.ReportWarning(report_client_wikitext, err)
		return "", err
	}
	return *res.Parse.Wikitext.Content, nil
}

type categoryMembersResponse struct {
	Error    *apiError `json:"error"`
	Continue *struct {
		Cmcontinue string `json:"cmcontinue"`
	} `json:"continue"`
	Query *struct {
		CategoryMembers []struct {
			Title string `json:"title"`
		} `json:"categorymembers"`
	} `json:"query"`
}

// CategoryMembers returns the titles of every page in a category, following
// continuation when the category has more members than fit in one response.
func (c *Client) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	var titles []string
	cmcontinue := ""
	for {
		params := map[string]string{
			"action":  "query",
			"list":    "categorymembers",
			"cmtitle": category,
			"cmlimit": categoryMemberLimit,
			"format":  "json",
		}
		if cmcontinue != "" {
			params["cmcontinue"] = cmcontinue
		}

		body, err := c.Query(ctx, params)
		if err != nil {
			return nil, err
		}

		var res categoryMembersResponse
		err = json.Unmarshal(body, &res)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrMalformedResponse, category, err)
			c.tel.ReportWarning(report_client_category_members, err)
			return nil, err
		}
		if res.Error != nil {
			err = fmt.Errorf("%s: %w", category, res.Error.err())
			c.tel.ReportWarning(report_client_category_members, err)
			return nil, err
		}
		if res.Query != nil {
			for _, member := range res.Query.CategoryMembers {
				titles = append(titles, member.Title)
			}
		}

		if res.Continue == nil || res.Continue.Cmcontinue == "" || res.Continue.Cmcontinue == cmcontinue {
			break
		}
		cmcontinue = res.Continue.Cmcontinue
	}

	c.tel.ReportDebug(
		report_client_category_members,
		telemetry.KV{Key: "category", Value: category},
		telemetry.KV{Key: "members", Value: len(titles)},
	)
	return titles, nil
}
