// Package inventory keeps a durable ledger of groceries on hand, fed
// by delivery receipts and consumed first-in-first-out.
package inventory

// StorageVersion is the current persisted document version. Documents
// written by older builds are migrated on load.
const StorageVersion = 2

// Document is the persisted form of the whole ledger.
type Document struct {
	Version   int              `json:"version"`
	Inventory map[string]*Item `json:"inventory"`
	// RFC3339
	LastSaved string `json:"last_saved"`
}

// Item is one product's position in the ledger. Quantity always
// equals the sum of the remaining delivery batch quantities.
type Item struct {
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Quantity float64 `json:"quantity"`
	// RFC3339, when the product first entered the ledger
	Added string `json:"added"`
	// RFC3339, the most recent delivery
	LastAdded string `json:"last_added"`
	// oldest first
	Deliveries []Delivery `json:"deliveries"`
}

// Delivery is one batch of an item, consumed before any younger batch.
type Delivery struct {
	BatchID  string  `json:"batch_id"`
	Quantity float64 `json:"quantity"`
	// RFC3339
	DeliveredAt string `json:"delivered_at"`
	OrderNumber string `json:"order_number,omitempty"`
}

// Store persists a ledger document somewhere durable.
type Store interface {
	Load() (*Document, error)
	Save(*Document) error
}

func emptyDocument() *Document {
	return &Document{
		Version:   StorageVersion,
		Inventory: map[string]*Item{},
	}
}
