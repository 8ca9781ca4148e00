package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/mind-engage/mindengage-grades/internal/rollup"
)

// maxPages bounds how many Link rel="next" pages one fetch follows.
const maxPages = 50

// ErrTooManyPages is returned when a listing still has a next page after
// maxPages; the partial result is discarded.
var ErrTooManyPages = errors.New("lms: too many pages")

// StatusError is returned for any non-2xx answer from the LMS.
type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Body)
}

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
	// RPS <= 0 disables throttling.
	RPS float64
}

type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a client. Without a TokenURL requests go out unauthenticated,
// which is only useful against a local gateway.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("lms: invalid base url %q", cfg.BaseURL)
	}
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		h = cc.Client(context.Background())
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Client{base: base, http: h, limiter: lim}, nil
}

type rollupPage struct {
	OutcomeRollups []rollup.Record `json:"outcome_rollups"`
}

// OutcomeRollups fetches every outcome rollup of one student in one course,
// in the order the LMS lists them.
func (c *Client) OutcomeRollups(ctx context.Context, studentID, courseID string) ([]rollup.Record, error) {
	u := *c.base
	u.Path += "/api/v1/courses/" + url.PathEscape(courseID) + "/outcome_rollups"
	u.RawQuery = url.Values{"user_id": {studentID}}.Encode()

	out := []rollup.Record{}
	next := u.String()
	for page := 0; next != "" && page < maxPages; page++ {
		var p rollupPage
		link, err := c.getJSON(ctx, "fetch outcome rollups", next, &p)
		if err != nil {
			return nil, err
		}
		out = append(out, p.OutcomeRollups...)
		next = nextLink(link)
	}
	if next != "" {
		return nil, fmt.Errorf("fetch outcome rollups: %w (limit %d)", ErrTooManyPages, maxPages)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, op, target string, v any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", &StatusError{Op: op, Code: res.StatusCode, Status: res.Status, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return "", fmt.Errorf("%s: decode: %w", op, err)
	}
	return res.Header.Get("Link"), nil
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range segs[1:] {
			p = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
			if p == `rel="next"` || p == "rel=next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
