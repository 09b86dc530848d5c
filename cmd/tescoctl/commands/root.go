package commands

import (
	"context"
	"fmt"
	"os"

	"tescoassist-backend/lib/configutil"
	"tescoassist-backend/lib/restyutil"
	"tescoassist-backend/lib/scrapers/tesco"
	"tescoassist-backend/lib/serviceutil"
	"tescoassist-backend/lib/sqliteutil"
	"tescoassist-backend/services/inventory"
	"tescoassist-backend/services/inventory/db"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tescoctl",
	Short: "tescoctl drives the tesco.ie scraper and the inventory ledger from the terminal.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type InventoryConfig struct {
	// path to a JSON document, used when Db is empty
	Path string `json:"path"`
	// sqlite file or libsql url
	Db      string `json:"db"`
	Account string `json:"account"`
}

type Config struct {
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	BaseUrl   string          `json:"base_url"`
	Inventory InventoryConfig `json:"inventory"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

func createClient(cfg Config) *tesco.Client {
	tesco.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/tescoctl"))

	client, err := tesco.NewClient(tesco.ClientOptions{
		BaseUrl:  cfg.BaseUrl,
		Email:    cfg.Email,
		Password: cfg.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize tesco client", err)
	}
	return client
}

func openLedger(cfg Config) *inventory.Ledger {
	var store inventory.Store
	if cfg.Inventory.Db != "" {
		database, err := sqliteutil.OpenDB(db.Schema, cfg.Inventory.Db)
		if err != nil {
			serviceutil.Fatal("failed to open inventory db", err)
		}
		account := cfg.Inventory.Account
		if account == "" {
			account = cfg.Email
		}
		store = inventory.NewDBStore(database, account)
	} else {
		path := cfg.Inventory.Path
		if path == "" {
			path = "inventory.json"
		}
		store = inventory.NewFileStore(path)
	}

	ledger, err := inventory.NewLedger(store)
	if err != nil {
		serviceutil.Fatal("failed to load inventory ledger", err)
	}
	return ledger
}
