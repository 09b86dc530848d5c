package tesco

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parseHTML(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractCSRFTokenPrecedence(t *testing.T) {
	// the meta tag outranks both the form input and the script token
	doc := parseHTML(t, `<html><head>
		<meta name="csrf-token" content="meta-token">
		<script>window.csrfToken = "script-token";</script>
	</head><body>
		<form><input name="_csrf" value="input-token"></form>
	</body></html>`)
	require.Equal(t, "meta-token", extractCSRFToken(doc))

	doc = parseHTML(t, `<html><body>
		<form><input name="_csrf" value="input-token"></form>
		<script>var csrfToken = 'script-token';</script>
	</body></html>`)
	require.Equal(t, "input-token", extractCSRFToken(doc))

	doc = parseHTML(t, `<html><body>
		<script>config = { csrfToken: "script-token" };</script>
	</body></html>`)
	require.Equal(t, "script-token", extractCSRFToken(doc))

	doc = parseHTML(t, `<html><body><p>no token here</p></body></html>`)
	require.Equal(t, "", extractCSRFToken(doc))
}

func TestExtractClubcardPoints(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<div class="clubcard-points-balance">You have 1250 points</div>
	</body></html>`)
	require.Equal(t, 1250, ExtractClubcardPoints(doc))
}

func TestExtractClubcardPointsFallsBackToPageText(t *testing.T) {
	// no clubcard-classed element, but the page text still mentions
	// a balance
	doc := parseHTML(t, `<html><body>
		<p>Clubcard balance: 340 points</p>
	</body></html>`)
	require.Equal(t, 340, ExtractClubcardPoints(doc))
}

func TestExtractClubcardPointsDefaultsToZero(t *testing.T) {
	doc := parseHTML(t, `<html><body><p>nothing relevant</p></body></html>`)
	require.Equal(t, 0, ExtractClubcardPoints(doc))
}

func TestExtractDeliveryInfo(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<div class="delivery-summary">
			Next delivery: 14 September 2026, 10:00 - 12:00
		</div>
		<div class="order-details">Order #482913</div>
	</body></html>`)

	info := ExtractDeliveryInfo(doc)
	require.Equal(t, "14 September 2026", info.NextDelivery)
	require.Equal(t, "10:00 - 12:00", info.DeliverySlot)
	require.Equal(t, "482913", info.OrderNumber)
}

func TestExtractDeliveryInfoFirstMatchWins(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<div class="delivery-slot">3 Jan 2026</div>
		<div class="delivery-slot">9 Feb 2026</div>
	</body></html>`)
	require.Equal(t, "3 Jan 2026", ExtractDeliveryInfo(doc).NextDelivery)
}

func TestExtractDeliveryInfoEmptyPage(t *testing.T) {
	info := ExtractDeliveryInfo(parseHTML(t, `<html><body></body></html>`))
	require.Equal(t, DeliveryInfo{}, info)
}

func TestExtractProducts(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<article class="product-tile" data-product-id="301234567">
			<h3 class="product-title">Irish Butter 454g</h3>
			<span class="price-value">€3.99</span>
		</article>
		<article class="product-tile">
			<h3 class="product-title">Brown Bread 800g</h3>
		</article>
		<article class="product-tile">
			<span class="price-value">€1.00</span>
		</article>
	</body></html>`)

	products := ExtractProducts(doc, 20)
	require.Len(t, products, 2)

	require.Equal(t, Product{
		ID:    "301234567",
		Name:  "Irish Butter 454g",
		Price: "€3.99",
	}, products[0])

	// no id attribute and no price, so both get defaults
	require.Equal(t, "product_1", products[1].ID)
	require.Equal(t, "Brown Bread 800g", products[1].Name)
	require.Equal(t, "N/A", products[1].Price)
}

func TestExtractProductsRespectsCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		sb.WriteString(`<div class="product-card"><a class="product-name">Milk</a></div>`)
	}
	sb.WriteString("</body></html>")

	products := ExtractProducts(parseHTML(t, sb.String()), 4)
	require.Len(t, products, 4)
}

func TestExtractBasketItems(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<li class="basket-item">
			<span class="item-name">Bananas 1kg</span>
			<input class="quantity-input" value="3">
		</li>
		<li class="basket-item">
			<span class="item-name">Oat Milk 1L</span>
			<span class="qty">not-a-number</span>
		</li>
		<li class="basket-item">
			<input class="quantity-input" value="5">
		</li>
	</body></html>`)

	items := ExtractBasketItems(doc)
	require.Equal(t, []BasketItem{
		{Name: "Bananas 1kg", Quantity: 3},
		// malformed quantity falls back to 1 instead of dropping
		// the item
		{Name: "Oat Milk 1L", Quantity: 1},
	}, items)
}
