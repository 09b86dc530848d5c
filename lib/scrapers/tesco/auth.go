package tesco

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"tescoassist-backend/lib/htmlutil"
	"tescoassist-backend/lib/ratelimit"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// phrases that only render on authenticated pages
var loginSuccessMarkers = []string{"my account", "clubcard", "sign out", "logout"}

const maxLoginBackoff = 300 * time.Second

var (
	csrfScriptRegex = regexp.MustCompile(`csrfToken["']?\s*[=:]\s*["']([^"']+)`)
	errorClassRegex = regexp.MustCompile(`(?i)error|alert|warning`)
)

// extractCSRFToken pulls the csrf token out of a login page. The meta
// tag wins over the hidden form input, which wins over tokens embedded
// in inline scripts.
func extractCSRFToken(doc *goquery.Document) string {
	if token, ok := doc.Find(`meta[name="csrf-token"]`).First().Attr("content"); ok && token != "" {
		slog.Debug("found csrf token in meta tag")
		return token
	}
	if token, ok := doc.Find(`input[name="_csrf"]`).First().Attr("value"); ok && token != "" {
		slog.Debug("found csrf token in form input")
		return token
	}
	var token string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		match := csrfScriptRegex.FindStringSubmatch(s.Text())
		if match != nil {
			token = match[1]
			return false
		}
		return true
	})
	if token != "" {
		slog.Debug("found csrf token in inline script")
	}
	return token
}

// scrapeLoginError collects the first few error/alert texts off a
// failed login page.
func scrapeLoginError(doc *goquery.Document) string {
	var messages []string
	htmlutil.FindByClassPattern(doc.Selection, "div, span, p", errorClassRegex).
		EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= 3 {
				return false
			}
			text := htmlutil.CompactText(s.Text())
			if text != "" {
				messages = append(messages, text)
			}
			return true
		})
	return strings.Join(messages, "; ")
}

func hasSuccessMarker(body string) bool {
	body = strings.ToLower(body)
	for _, marker := range loginSuccessMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// Login authenticates against the portal. Usually not needed directly,
// data operations log in on demand.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// loginBackoff sleeps out the remainder of the exponential backoff
// window earned by previous failed attempts. Callers hold c.mu.
func (c *Client) loginBackoff(ctx context.Context) error {
	if c.failedLoginAttempts == 0 {
		return nil
	}

	backoff := maxLoginBackoff
	if c.failedLoginAttempts < 9 {
		backoff = (1 << c.failedLoginAttempts) * time.Second
		if backoff > maxLoginBackoff {
			backoff = maxLoginBackoff
		}
	}
	elapsed := time.Since(c.lastLoginAttempt)
	if elapsed >= backoff {
		return nil
	}

	wait := backoff - elapsed
	slog.InfoContext(ctx, "backing off before login attempt",
		"failed_attempts", c.failedLoginAttempts, "wait", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// login performs the full login flow. Callers hold c.mu.
func (c *Client) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:login")
	defer span.End()

	// the password is discarded on first success, so a session that
	// expires later cannot be transparently re-established
	if c.password == "" {
		err := &AuthError{Message: "no credentials held, cannot authenticate"}
		span.SetStatus(codes.Error, err.Message)
		return err
	}

	if err := c.loginBackoff(ctx); err != nil {
		return err
	}
	c.lastLoginAttempt = time.Now()

	if err := c.ensureSession(); err != nil {
		return c.loginFailed(ctx, span, "failed to create session", err)
	}

	res, err := c.fetchPage(ctx, loginPath)
	if err != nil {
		return c.loginFailed(ctx, span, "failed to load login page", err)
	}
	if res.StatusCode() != 200 {
		return c.loginFailed(ctx, span,
			"failed to load login page: HTTP "+res.Status(), nil)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return c.loginFailed(ctx, span, "failed to parse login page", err)
	}
	c.csrfToken = extractCSRFToken(doc)
	if c.csrfToken == "" {
		slog.WarnContext(ctx, "no csrf token found on login page")
	}

	form := map[string]string{
		"username": c.email,
		"password": c.password,
	}
	if c.csrfToken != "" {
		form["_csrf"] = c.csrfToken
	}

	if err := c.limiter.Wait(ctx, ratelimit.Write); err != nil {
		return err
	}
	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseUrl.JoinPath(loginPath).String()).
		SetHeader("Origin", c.baseUrl.String()).
		SetFormData(form).
		Post(loginPath)
	if err != nil {
		return c.loginFailed(ctx, span, "login request failed", err)
	}

	switch res.StatusCode() {
	case 200, 302, 303:
	default:
		return c.loginFailed(ctx, span,
			"login rejected: HTTP "+res.Status(), nil)
	}

	if !hasSuccessMarker(string(res.Body())) {
		message := "invalid credentials"
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body())); err == nil {
			if scraped := scrapeLoginError(doc); scraped != "" {
				message = scraped
			}
		}
		return c.loginFailed(ctx, span, "login failed: "+message, nil)
	}

	c.loggedIn = true
	c.failedLoginAttempts = 0
	// never retain credentials past a successful authentication
	c.password = ""
	slog.InfoContext(ctx, "logged in", "email", c.email)
	return nil
}

// loginFailed records a failed attempt, tears the session down and
// wraps the cause. Callers hold c.mu.
func (c *Client) loginFailed(ctx context.Context, span trace.Span, message string, err error) error {
	c.failedLoginAttempts++
	c.loggedIn = false
	c.teardownSession()

	slog.WarnContext(ctx, "login failed",
		"message", message, "err", err, "failed_attempts", c.failedLoginAttempts)
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, message)
	return &AuthError{Message: message, Err: err}
}
