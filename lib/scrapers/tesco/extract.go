package tesco

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"tescoassist-backend/lib/htmlutil"
)

// The portal's markup changes without notice, so none of these
// extractors pin exact selectors. They scan for class-name patterns and
// fall back to harmless defaults when the page yields nothing.

var (
	clubcardClassRegex = regexp.MustCompile(`(?i)clubcard.*points?`)

	// tried in order, first numeric match wins
	pointsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*points?`),
		regexp.MustCompile(`(?i)clubcard.*?(\d+)`),
		regexp.MustCompile(`(?i)points.*?(\d+)`),
	}

	deliveryClassRegex = regexp.MustCompile(`(?i)delivery|order`)
	deliveryDateRegex  = regexp.MustCompile(`(?i)(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\w*\s+(\d{4})`)
	deliverySlotRegex  = regexp.MustCompile(`\d{1,2}:\d{2}\s*-\s*\d{1,2}:\d{2}`)
	orderNumberRegex   = regexp.MustCompile(`(?i)order\s*#?\s*(\d+)`)

	productTileRegex  = regexp.MustCompile(`(?i)product-tile|product-card|product-list-item`)
	productNameRegex  = regexp.MustCompile(`(?i)product-title|product-name`)
	productPriceRegex = regexp.MustCompile(`(?i)price-value|product-price`)

	basketItemRegex     = regexp.MustCompile(`(?i)basket-item|cart-item`)
	basketNameRegex     = regexp.MustCompile(`(?i)item-name|product-name`)
	basketQuantityRegex = regexp.MustCompile(`(?i)quantity|qty`)
)

func matchPoints(text string) (int, bool) {
	for _, pattern := range pointsPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		points, err := strconv.Atoi(match[1])
		if err == nil {
			return points, true
		}
	}
	return 0, false
}

// ExtractClubcardPoints pulls the clubcard points balance out of an
// account page. Returns 0 when nothing on the page looks like a points
// balance.
func ExtractClubcardPoints(doc *goquery.Document) int {
	candidates := htmlutil.FindByClassPattern(doc.Selection, "div, span, p", clubcardClassRegex)
	if candidates.Length() == 0 {
		slog.Warn("no clubcard elements found on account page")
	}

	points := 0
	candidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if p, ok := matchPoints(s.Text()); ok {
			points = p
			return false
		}
		return true
	})
	if points > 0 {
		return points
	}

	// last resort: scan the whole page text
	if p, ok := matchPoints(doc.Text()); ok {
		return p
	}
	return 0
}

// ExtractDeliveryInfo pulls next delivery date, slot and order number
// out of an account page. Each field keeps its first match, later
// delivery blocks never overwrite it.
func ExtractDeliveryInfo(doc *goquery.Document) DeliveryInfo {
	candidates := htmlutil.FindByClassPattern(doc.Selection, "div, section", deliveryClassRegex)
	if candidates.Length() == 0 {
		slog.Warn("no delivery elements found on account page")
	}

	var info DeliveryInfo
	candidates.Each(func(_ int, s *goquery.Selection) {
		text := htmlutil.CompactText(s.Text())

		if info.NextDelivery == "" {
			if match := deliveryDateRegex.FindString(text); match != "" {
				info.NextDelivery = match
			}
		}
		if info.DeliverySlot == "" {
			if match := deliverySlotRegex.FindString(text); match != "" {
				info.DeliverySlot = match
			}
		}
		if info.OrderNumber == "" {
			if match := orderNumberRegex.FindStringSubmatch(text); match != nil {
				info.OrderNumber = match[1]
			}
		}
	})
	return info
}

// ExtractProducts pulls product tiles out of a search results page,
// capped at max. Tiles without a recognizable name are skipped.
func ExtractProducts(doc *goquery.Document, max int) []Product {
	containers := htmlutil.FindByClassPattern(doc.Selection, "article, div", productTileRegex)
	if containers.Length() == 0 {
		slog.Warn("no product tiles found on search page")
	}

	var products []Product
	containers.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= max {
			return false
		}

		name := htmlutil.CompactText(
			htmlutil.FindByClassPattern(s, "h2, h3, a", productNameRegex).First().Text())
		if name == "" {
			slog.Debug("skipping product tile without a name", "index", i)
			return true
		}

		id := s.AttrOr("data-product-id", "")
		if id == "" {
			id = s.AttrOr("data-product", "")
		}
		if id == "" {
			id = s.AttrOr("id", "")
		}
		if id == "" {
			id = fmt.Sprintf("product_%d", len(products))
		}

		price := htmlutil.CompactText(
			htmlutil.FindByClassPattern(s, "span, div", productPriceRegex).First().Text())
		if price == "" {
			price = "N/A"
		}

		products = append(products, Product{ID: id, Name: name, Price: price})
		return true
	})
	return products
}

// ExtractBasketItems pulls line items out of a basket page. A
// malformed quantity defaults to 1 rather than dropping the item.
func ExtractBasketItems(doc *goquery.Document) []BasketItem {
	containers := htmlutil.FindByClassPattern(doc.Selection, "div, li", basketItemRegex)
	if containers.Length() == 0 {
		slog.Warn("no basket items found on basket page")
	}

	var items []BasketItem
	containers.Each(func(i int, s *goquery.Selection) {
		name := htmlutil.CompactText(
			htmlutil.FindByClassPattern(s, "span, h3, a", basketNameRegex).First().Text())
		if name == "" {
			slog.Debug("skipping basket item without a name", "index", i)
			return
		}

		quantity := 1
		qty := htmlutil.FindByClassPattern(s, "input, span", basketQuantityRegex).First()
		raw := htmlutil.CompactText(qty.Text())
		if raw == "" {
			raw = qty.AttrOr("value", "")
		}
		if raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				slog.Debug("unparseable basket quantity", "raw", raw, "item", name)
			} else {
				quantity = parsed
			}
		}

		items = append(items, BasketItem{Name: name, Quantity: quantity})
	})
	return items
}
