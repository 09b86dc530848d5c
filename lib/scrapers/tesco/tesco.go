// Package tesco scrapes the tesco.ie retail portal. There is no stable
// public API behind it, only unversioned HTML, so every extractor here
// degrades to a safe default instead of failing when the markup shifts.
package tesco

import (
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/tesco")

const DefaultBaseUrl = "https://www.tesco.ie"

const (
	loginPath     = "/login"
	groceriesPath = "/groceries"
	accountPath   = "/account"
	basketPath    = "/groceries/basket"
	searchPath    = "/groceries/search"
	basketAddPath = "/groceries/api/basket/add"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxSearchResults = 20
	defaultSearchCacheTTL   = 5 * time.Minute
)

// Product is a single search result. Price stays a display string
// ("€1.50", "N/A"), the portal gives us nothing better to parse.
type Product struct {
	ID    string
	Name  string
	Price string
}

// DeliveryInfo is scraped from the account page. Every field is
// independently optional, an empty string means the portal did not
// render it (or renders it in markup we no longer recognize).
type DeliveryInfo struct {
	NextDelivery string
	DeliverySlot string
	OrderNumber  string
}

type BasketItem struct {
	Name     string
	Quantity int
}

// Data is the combined account snapshot returned by GetData.
type Data struct {
	ClubcardPoints int
	DeliveryInfo
	BasketItems []BasketItem
}

// BasketOpResult reports a basket mutation as a value rather than an
// error, partial success is a normal outcome when driving a non-API
// surface.
type BasketOpResult struct {
	Success      bool
	Message      string
	ResponseData map[string]any
}
