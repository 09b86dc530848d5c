// Package shoppinglist keeps an in-memory shopping list that resolves
// free-text item names against the grocery portal and drops the best
// match into the basket.
package shoppinglist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tescoassist-backend/lib/scrapers/tesco"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/shoppinglist")

// below this the "best" search hit is probably a different product
// entirely, keep the entry unresolved instead
const minSimilarity = 0.6

// Searcher is the slice of the portal client the list needs.
type Searcher interface {
	SearchProducts(ctx context.Context, query string) []tesco.Product
	AddToBasket(ctx context.Context, productID string, quantity int) tesco.BasketOpResult
}

// Entry is one line of the shopping list. ProductID is empty when no
// portal product matched the name well enough.
type Entry struct {
	Name      string `json:"name"`
	ProductID string `json:"product_id,omitempty"`
	Complete  bool   `json:"complete"`
}

type List struct {
	mu      sync.Mutex
	client  Searcher
	entries []Entry
}

func NewList(client Searcher) *List {
	return &List{client: client}
}

// closest picks the search hit whose name is most similar to the
// requested one, not just the first result the portal ranked.
func closest(name string, products []tesco.Product) (tesco.Product, bool) {
	var best tesco.Product
	var bestSimilarity float64
	for _, product := range products {
		similarity := matchr.JaroWinkler(
			strings.ToLower(name), strings.ToLower(product.Name), false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = product
		}
	}
	return best, bestSimilarity >= minSimilarity
}

// AddItem searches the portal for name, adds the best match to the
// basket and appends an entry. A name that resolves to nothing still
// goes on the list, just without a product id.
func (l *List) AddItem(ctx context.Context, name string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, span := tracer.Start(ctx, "shoppinglist:AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	entry := Entry{Name: name}

	products := l.client.SearchProducts(ctx, name)
	match, ok := closest(name, products)
	if !ok {
		slog.WarnContext(ctx, "no close product match", "name", name, "candidates", len(products))
		l.entries = append(l.entries, entry)
		return entry, nil
	}

	result := l.client.AddToBasket(ctx, match.ID, 1)
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
		return entry, fmt.Errorf("failed to add %q to basket: %s", match.Name, result.Message)
	}

	entry.ProductID = match.ID
	l.entries = append(l.entries, entry)
	slog.InfoContext(ctx, "added item to shopping list",
		"name", name, "matched", match.Name, "product_id", match.ID)
	return entry, nil
}

// UpdateItem renames an entry or toggles its completion. Index is the
// position reported by Items.
func (l *List) UpdateItem(index int, name string, complete bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.entries) {
		return fmt.Errorf("no shopping list entry at index %d", index)
	}
	if name != "" {
		l.entries[index].Name = name
	}
	l.entries[index].Complete = complete
	return nil
}

func (l *List) RemoveItem(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.entries) {
		return fmt.Errorf("no shopping list entry at index %d", index)
	}
	l.entries = append(l.entries[:index], l.entries[index+1:]...)
	return nil
}

// ClearCompleted drops every completed entry and reports how many went.
func (l *List) ClearCompleted() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	removed := 0
	for _, entry := range l.entries {
		if entry.Complete {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	l.entries = kept
	return removed
}

// Items returns a copy of the current entries.
func (l *List) Items() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
