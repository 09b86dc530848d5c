package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tescoassist-backend/lib/timezone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/inventory")

const (
	timeFormat    = time.RFC3339
	batchIDFormat = "20060102_150405"
)

// ReceiptItem is one line of a delivery receipt.
type ReceiptItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity"`
}

// Ledger owns an inventory document and its store. Every mutation is
// saved synchronously before observers fire, so a crash right after a
// mutation returns never loses it.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	doc       *Document
	observers []func()
}

// NewLedger loads (and if necessary migrates) the document out of the
// store. A missing or corrupt document starts the ledger empty rather
// than failing, losing stale state beats refusing to run. A migrated
// document is saved back immediately so the old form is never read
// twice.
func NewLedger(store Store) (*Ledger, error) {
	doc, err := store.Load()
	if err != nil {
		slog.Warn("failed to load inventory document, starting empty", "err", err)
		doc = emptyDocument()
	}

	migrated, err := Migrate(doc)
	if err != nil {
		return nil, err
	}
	if migrated {
		doc.LastSaved = timezone.Now().Format(timeFormat)
		if err := store.Save(doc); err != nil {
			return nil, fmt.Errorf("failed to save migrated document: %w", err)
		}
	}

	return &Ledger{store: store, doc: doc}, nil
}

// Subscribe registers a callback invoked after every saved mutation.
// Callbacks run synchronously on the mutating goroutine and must not
// call back into the ledger.
func (l *Ledger) Subscribe(callback func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, callback)
}

// callers hold l.mu
func (l *Ledger) saveAndNotify() error {
	l.doc.LastSaved = timezone.Now().Format(timeFormat)
	if err := l.store.Save(l.doc); err != nil {
		return err
	}
	for _, callback := range l.observers {
		callback()
	}
	return nil
}

// AddItemsFromReceipt records a delivery. All items share one batch id
// derived from the delivery time, and the whole receipt is saved once.
func (l *Ledger) AddItemsFromReceipt(ctx context.Context, items []ReceiptItem, orderNumber string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, span := tracer.Start(ctx, "ledger:AddItemsFromReceipt")
	defer span.End()
	span.SetAttributes(
		attribute.Int("items", len(items)),
		attribute.String("order_number", orderNumber),
	)

	if len(items) == 0 {
		return nil
	}

	now := timezone.Now()
	batchID := "delivery_" + now.Format(batchIDFormat)
	timestamp := now.Format(timeFormat)

	for _, receipt := range items {
		if receipt.Quantity <= 0 {
			slog.Warn("skipping receipt item with no quantity",
				"product_id", receipt.ProductID, "name", receipt.Name)
			continue
		}

		// receipts do not always carry a product id, fall back to
		// the name and finally a literal "unknown" key
		key := receipt.ProductID
		if key == "" {
			key = receipt.Name
		}
		if key == "" {
			key = "unknown"
		}

		item, ok := l.doc.Inventory[key]
		if !ok {
			item = &Item{
				Name:  receipt.Name,
				Unit:  receipt.Unit,
				Added: timestamp,
			}
			l.doc.Inventory[key] = item
		}
		if receipt.Name != "" {
			item.Name = receipt.Name
		}
		if receipt.Unit != "" {
			item.Unit = receipt.Unit
		}
		item.Quantity += receipt.Quantity
		item.LastAdded = timestamp
		item.Deliveries = append(item.Deliveries, Delivery{
			BatchID:     batchID,
			Quantity:    receipt.Quantity,
			DeliveredAt: timestamp,
			OrderNumber: orderNumber,
		})
	}

	if err := l.saveAndNotify(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	slog.Info("recorded delivery", "batch_id", batchID, "items", len(items))
	return nil
}

// RemoveItem consumes quantity of a product, oldest batches first.
// The entry disappears entirely once nothing remains. Removing an
// unknown product is a logged no-op.
func (l *Ledger) RemoveItem(ctx context.Context, productID string, quantity float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, span := tracer.Start(ctx, "ledger:RemoveItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Float64("quantity", quantity),
	)

	item, ok := l.doc.Inventory[productID]
	if !ok {
		slog.Warn("cannot remove unknown product", "product_id", productID)
		return nil
	}
	if quantity <= 0 {
		return nil
	}

	remaining := quantity
	for remaining > 0 && len(item.Deliveries) > 0 {
		oldest := &item.Deliveries[0]
		if oldest.Quantity > remaining {
			oldest.Quantity -= remaining
			remaining = 0
			break
		}
		remaining -= oldest.Quantity
		item.Deliveries = item.Deliveries[1:]
	}

	item.Quantity -= quantity
	if item.Quantity <= 0 {
		delete(l.doc.Inventory, productID)
		slog.Info("product depleted", "product_id", productID, "name", item.Name)
	}

	if err := l.saveAndNotify(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ItemCount reports the number of distinct products on hand.
func (l *Ledger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.doc.Inventory)
}

// Items returns a deep copy of the current inventory.
func (l *Ledger) Items() map[string]Item {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make(map[string]Item, len(l.doc.Inventory))
	for id, item := range l.doc.Inventory {
		copied := *item
		copied.Deliveries = append([]Delivery(nil), item.Deliveries...)
		items[id] = copied
	}
	return items
}
