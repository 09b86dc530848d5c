// tescod polls the portal on an interval and keeps a local snapshot of
// the account data, the way a dashboard integration would consume it.
package main

import (
	"context"
	"log/slog"
	"time"

	"tescoassist-backend/lib/configutil"
	"tescoassist-backend/lib/restyutil"
	"tescoassist-backend/lib/scrapers/tesco"
	"tescoassist-backend/lib/serviceutil"
	"tescoassist-backend/lib/sqliteutil"
	"tescoassist-backend/lib/telemetry"
	"tescoassist-backend/services/inventory"
	inventorydb "tescoassist-backend/services/inventory/db"
)

type InventoryConfig struct {
	Path    string `json:"path"`
	Db      string `json:"db"`
	Account string `json:"account"`
}

type Config struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	BaseUrl  string `json:"base_url"`
	// minutes between portal refreshes, defaults to 5
	UpdateInterval int             `json:"update_interval"`
	Inventory      InventoryConfig `json:"inventory"`
}

func openLedger(config Config) (*inventory.Ledger, error) {
	var store inventory.Store
	if config.Inventory.Db != "" {
		db, err := sqliteutil.OpenDB(inventorydb.Schema, config.Inventory.Db)
		if err != nil {
			return nil, err
		}
		account := config.Inventory.Account
		if account == "" {
			account = config.Email
		}
		store = inventory.NewDBStore(db, account)
	} else {
		path := config.Inventory.Path
		if path == "" {
			path = "inventory.json"
		}
		store = inventory.NewFileStore(path)
	}
	return inventory.NewLedger(store)
}

func refresh(ctx context.Context, client *tesco.Client, ledger *inventory.Ledger) {
	data, err := client.GetData(ctx)
	if err != nil {
		slog.Error("failed to refresh portal data", "err", err)
		return
	}
	slog.Info("refreshed portal data",
		"clubcard_points", data.ClubcardPoints,
		"next_delivery", data.DeliveryInfo.NextDelivery,
		"basket_items", len(data.BasketItems),
		"inventory_items", ledger.ItemCount(),
	)
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	interval := time.Duration(config.UpdateInterval) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	t, err := telemetry.SetupFromEnv(ctx, "tescod")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InitSlog(false)
	telemetry.InstrumentPerfStats(ctx)

	ledger, err := openLedger(config)
	if err != nil {
		serviceutil.Fatal("failed to load inventory ledger", err)
	}
	ledger.Subscribe(func() {
		slog.Info("inventory changed", "items", ledger.ItemCount())
	})

	tesco.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/tescod"))
	client, err := tesco.NewClient(tesco.ClientOptions{
		BaseUrl:  config.BaseUrl,
		Email:    config.Email,
		Password: config.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize tesco client", err)
	}
	defer client.Close()

	refresh(ctx, client, ledger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh(ctx, client, ledger)
		case <-ctx.Done():
			return
		}
	}
}
