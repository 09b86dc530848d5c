package tesco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
	"tescoassist-backend/lib/ratelimit"
	"tescoassist-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables request/response transcripts for
// every client created afterwards.
func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	restyInstrumentOutput = output
}

type ClientOptions struct {
	// defaults to DefaultBaseUrl
	BaseUrl  string
	Email    string
	Password string
	// defaults to DefaultTimeout
	Timeout time.Duration
	// minimum spacing between reads/writes, see lib/ratelimit for
	// defaults
	ReadDelay  time.Duration
	WriteDelay time.Duration
	// defaults to DefaultMaxSearchResults
	MaxSearchResults int
	SearchCacheTTL   time.Duration
}

// Client owns the transport session, cookies and csrf token for one
// tesco.ie account. Methods serialize internally so a scheduled
// refresh racing a manual action cannot interleave two logins.
type Client struct {
	baseUrl          *url.URL
	email            string
	timeout          time.Duration
	maxSearchResults int
	limiter          *ratelimit.Limiter
	searchCache      *cache.Cache

	mu sync.Mutex
	// held only until the first successful login, then cleared
	password            string
	http                *resty.Client
	csrfToken           string
	loggedIn            bool
	failedLoginAttempts int
	lastLoginAttempt    time.Time
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxSearchResults <= 0 {
		opts.MaxSearchResults = DefaultMaxSearchResults
	}
	ttl := opts.SearchCacheTTL
	if ttl <= 0 {
		ttl = defaultSearchCacheTTL
	}

	c := &Client{
		baseUrl:          baseUrl,
		email:            opts.Email,
		password:         opts.Password,
		timeout:          opts.Timeout,
		maxSearchResults: opts.MaxSearchResults,
		limiter:          ratelimit.New(opts.ReadDelay, opts.WriteDelay),
		searchCache:      cache.New(ttl, ttl),
	}
	return c, nil
}

// ensureSession creates the transport session iff none exists. Callers
// hold c.mu.
func (c *Client) ensureSession() error {
	if c.http != nil {
		return nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	client := resty.New()
	client.SetBaseURL(c.baseUrl.String())
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeaders(map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-IE,en;q=0.9",
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	})
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.baseUrl.Hostname()))
	client.SetTimeout(c.timeout)

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	c.http = client
	slog.Debug("created transport session", "base_url", c.baseUrl.String(), "timeout", c.timeout)
	return nil
}

// teardownSession drops the transport session. Callers hold c.mu.
func (c *Client) teardownSession() {
	if c.http == nil {
		return
	}
	c.http.GetClient().CloseIdleConnections()
	c.http = nil
}

// Close releases the transport session and forgets the login state.
// Safe to call multiple times.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasLoggedIn := c.loggedIn
	c.teardownSession()
	c.loggedIn = false
	c.csrfToken = ""
	slog.Debug("session closed", "was_logged_in", wasLoggedIn)
}

// LoggedIn reports whether the client holds a verified session, for
// diagnostics.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// HasCSRFToken reports whether a csrf token was found on the last
// login page, for diagnostics.
func (c *Client) HasCSRFToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrfToken != ""
}

// rate-limited GET of a path relative to the base url. Callers hold
// c.mu.
func (c *Client) fetchPage(ctx context.Context, path string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx, ratelimit.Read); err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).Get(path)
}

// sessionExpired recognizes the portal bouncing an authenticated page
// back to the login flow.
func sessionExpired(res *resty.Response) bool {
	if res.StatusCode() == 401 || res.StatusCode() == 403 {
		return true
	}
	if res.RawResponse == nil || res.RawResponse.Request == nil {
		return false
	}
	return strings.Contains(res.RawResponse.Request.URL.Path, loginPath)
}

// GetData fetches the combined account snapshot: clubcard points,
// delivery info and the current basket. Logs in first when needed and
// attempts the login exactly once more if the session expired
// mid-update; since credentials are discarded after the first success
// that attempt surfaces an *AuthError. Non-auth failures come back as
// *APIError.
func (c *Client) GetData(ctx context.Context) (Data, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "client:GetData")
	defer span.End()

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			span.SetStatus(codes.Error, "login failed")
			return Data{}, err
		}
	}
	if err := c.ensureSession(); err != nil {
		return Data{}, &APIError{Message: "failed to create session", Err: err}
	}

	res, err := c.fetchPage(ctx, accountPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch account page")
		return Data{}, &APIError{Message: "failed to fetch account page", Err: err}
	}

	if sessionExpired(res) {
		slog.WarnContext(ctx, "session no longer authenticated, retrying login once")
		c.loggedIn = false
		if err := c.login(ctx); err != nil {
			return Data{}, err
		}
		res, err = c.fetchPage(ctx, accountPath)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch account page after re-login")
			return Data{}, &APIError{Message: "failed to fetch account page", Err: err}
		}
		if sessionExpired(res) {
			return Data{}, &APIError{Message: "session expired and re-login did not stick"}
		}
	}

	var data Data
	if res.StatusCode() == 200 {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to parse account page")
			return Data{}, &APIError{Message: "failed to parse account page", Err: err}
		}
		data.ClubcardPoints = ExtractClubcardPoints(doc)
		data.DeliveryInfo = ExtractDeliveryInfo(doc)
	} else {
		slog.WarnContext(ctx, "failed to fetch account data", "status", res.StatusCode())
	}

	data.BasketItems = c.getBasket(ctx)
	return data, nil
}

// SearchProducts searches the grocery catalog. It never fails: any
// transport or auth problem logs and yields an empty result. Recent
// queries are served from a short-lived cache so a shopping list
// resolving several items does not hammer the portal.
func (c *Client) SearchProducts(ctx context.Context, query string) []Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "client:SearchProducts")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	if cached, ok := c.searchCache.Get(query); ok {
		span.SetStatus(codes.Ok, "CACHE HIT")
		return cached.([]Product)
	}

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			slog.WarnContext(ctx, "login failed before product search", "err", err)
			return nil
		}
	}
	if err := c.ensureSession(); err != nil {
		slog.WarnContext(ctx, "failed to create session", "err", err)
		return nil
	}

	if err := c.limiter.Wait(ctx, ratelimit.Read); err != nil {
		return nil
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		Get(searchPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search request failed")
		slog.ErrorContext(ctx, "error searching products", "query", query, "err", err)
		return nil
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "product search failed", "query", query, "status", res.StatusCode())
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse search results")
		slog.WarnContext(ctx, "failed to parse search results", "err", err)
		return nil
	}

	products := ExtractProducts(doc, c.maxSearchResults)
	slog.InfoContext(ctx, "found products", "query", query, "count", len(products))
	c.searchCache.SetDefault(query, products)
	return products
}

// AddToBasket adds a product to the shopping basket. The outcome is
// always a result value, HTTP 200/201 counts as success and anything
// else (including transport errors) comes back as Success=false with a
// descriptive message.
func (c *Client) AddToBasket(ctx context.Context, productID string, quantity int) BasketOpResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "client:AddToBasket")
	defer span.End()
	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity),
	)

	if quantity <= 0 {
		quantity = 1
	}

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			span.SetStatus(codes.Error, "login failed")
			return BasketOpResult{Message: fmt.Sprintf("authentication error: %v", err)}
		}
	}
	if err := c.ensureSession(); err != nil {
		return BasketOpResult{Message: fmt.Sprintf("error: %v", err)}
	}

	if err := c.limiter.Wait(ctx, ratelimit.Write); err != nil {
		return BasketOpResult{Message: fmt.Sprintf("error: %v", err)}
	}

	body := map[string]any{
		"productId": productID,
		"quantity":  quantity,
	}
	if c.csrfToken != "" {
		body["_csrf"] = c.csrfToken
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Referer", c.baseUrl.JoinPath(groceriesPath).String()).
		SetHeader("X-Requested-With", "XMLHttpRequest").
		SetBody(body).
		Post(basketAddPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "basket add request failed")
		slog.ErrorContext(ctx, "error adding to basket", "product_id", productID, "err", err)
		return BasketOpResult{Message: fmt.Sprintf("error: %v", err)}
	}

	if res.StatusCode() == 200 || res.StatusCode() == 201 {
		responseData := map[string]any{}
		if len(res.Body()) > 0 {
			if err := json.Unmarshal(res.Body(), &responseData); err != nil {
				responseData = map[string]any{"raw_response": string(res.Body())}
			}
		}
		slog.InfoContext(ctx, "added item to basket", "product_id", productID, "quantity", quantity)
		return BasketOpResult{
			Success:      true,
			Message:      "item added to basket",
			ResponseData: responseData,
		}
	}

	preview := string(res.Body())
	if len(preview) > 200 {
		preview = preview[:200]
	}
	slog.WarnContext(ctx, "failed to add to basket", "status", res.StatusCode(), "body", preview)
	return BasketOpResult{
		Message: fmt.Sprintf("failed with HTTP %d", res.StatusCode()),
		ResponseData: map[string]any{
			"status": res.StatusCode(),
			"error":  preview,
		},
	}
}

// GetBasket fetches the current basket contents. Never fails, an empty
// slice covers every error path.
func (c *Client) GetBasket(ctx context.Context) []BasketItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "client:GetBasket")
	defer span.End()

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			slog.WarnContext(ctx, "login failed before basket fetch", "err", err)
			return nil
		}
	}
	return c.getBasket(ctx)
}

// getBasket does the fetch + extraction. Callers hold c.mu.
func (c *Client) getBasket(ctx context.Context) []BasketItem {
	if err := c.ensureSession(); err != nil {
		slog.WarnContext(ctx, "failed to create session", "err", err)
		return nil
	}

	res, err := c.fetchPage(ctx, basketPath)
	if err != nil {
		slog.ErrorContext(ctx, "error fetching basket", "err", err)
		return nil
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "failed to fetch basket", "status", res.StatusCode())
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		slog.WarnContext(ctx, "failed to parse basket page", "err", err)
		return nil
	}
	return ExtractBasketItems(doc)
}
