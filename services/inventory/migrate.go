package inventory

import (
	"fmt"
	"log/slog"

	"tescoassist-backend/lib/timezone"
)

// migratedBatchID marks batches synthesized for documents written
// before per-delivery tracking existed.
const migratedBatchID = "migrated"

// each step takes a document at version n to version n+1
var migrations = map[int]func(*Document){
	1: migrateV1DeliveryBatches,
}

// Migrate upgrades a document to StorageVersion in place. Reports
// whether anything changed so callers can persist the upgraded form
// immediately. Documents with no version field count as version 1.
func Migrate(doc *Document) (bool, error) {
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Inventory == nil {
		doc.Inventory = map[string]*Item{}
	}
	if doc.Version == StorageVersion {
		return false, nil
	}
	if doc.Version > StorageVersion {
		return false, fmt.Errorf(
			"document version %d is newer than this build supports (%d)",
			doc.Version, StorageVersion,
		)
	}

	for doc.Version < StorageVersion {
		step, ok := migrations[doc.Version]
		if !ok {
			return false, fmt.Errorf("no migration from document version %d", doc.Version)
		}
		slog.Info("migrating inventory document",
			"from", doc.Version, "to", doc.Version+1)
		step(doc)
		doc.Version++
	}
	return true, nil
}

// v1 documents tracked a flat quantity per item. Fold it into a single
// synthetic batch so FIFO consumption works uniformly afterwards.
func migrateV1DeliveryBatches(doc *Document) {
	for _, item := range doc.Inventory {
		if len(item.Deliveries) > 0 {
			continue
		}
		deliveredAt := item.Added
		if deliveredAt == "" {
			deliveredAt = timezone.Now().Format(timeFormat)
		}
		item.Deliveries = []Delivery{{
			BatchID:     migratedBatchID,
			Quantity:    item.Quantity,
			DeliveredAt: deliveredAt,
		}}
	}
}
