package inventory

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMigrateV1SynthesizesBatches(t *testing.T) {
	doc := &Document{
		Version: 1,
		Inventory: map[string]*Item{
			"p1": {
				Name:     "Milk",
				Unit:     "l",
				Quantity: 3,
				Added:    "2026-01-02T10:00:00Z",
			},
		},
	}

	changed, err := Migrate(doc)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StorageVersion, doc.Version)

	want := []Delivery{{
		BatchID:     "migrated",
		Quantity:    3,
		DeliveredAt: "2026-01-02T10:00:00Z",
	}}
	if diff := cmp.Diff(want, doc.Inventory["p1"].Deliveries); diff != "" {
		t.Fatalf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrateTreatsMissingVersionAsV1(t *testing.T) {
	doc := &Document{
		Inventory: map[string]*Item{
			"p1": {Name: "Milk", Quantity: 1},
		},
	}

	changed, err := Migrate(doc)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StorageVersion, doc.Version)
	require.Len(t, doc.Inventory["p1"].Deliveries, 1)
	// no Added timestamp to reuse, so the batch gets a fresh one
	require.NotEmpty(t, doc.Inventory["p1"].Deliveries[0].DeliveredAt)
}

func TestMigrateIsIdempotent(t *testing.T) {
	doc := &Document{
		Version: 1,
		Inventory: map[string]*Item{
			"p1": {Name: "Milk", Quantity: 3, Added: "2026-01-02T10:00:00Z"},
		},
	}

	changed, err := Migrate(doc)
	require.NoError(t, err)
	require.True(t, changed)
	first := doc.Inventory["p1"].Deliveries

	changed, err = Migrate(doc)
	require.NoError(t, err)
	require.False(t, changed)
	if diff := cmp.Diff(first, doc.Inventory["p1"].Deliveries); diff != "" {
		t.Fatalf("second migration changed the document (-first +second):\n%s", diff)
	}
}

func TestMigrateCurrentVersionPassesThrough(t *testing.T) {
	doc := &Document{
		Version: StorageVersion,
		Inventory: map[string]*Item{
			"p1": {
				Name:     "Milk",
				Quantity: 2,
				Deliveries: []Delivery{
					{BatchID: "delivery_20260102_100000", Quantity: 2},
				},
			},
		},
	}

	changed, err := Migrate(doc)
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, doc.Inventory["p1"].Deliveries, 1)
}

func TestMigrateRejectsNewerDocuments(t *testing.T) {
	doc := &Document{Version: StorageVersion + 1}
	_, err := Migrate(doc)
	require.Error(t, err)
}
