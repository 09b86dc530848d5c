package commands

import (
	"fmt"
	"os"
	"sort"

	"tescoassist-backend/lib/configutil"
	"tescoassist-backend/services/inventory"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	receiptOrder *string
	removeQty    *float64
)

func init() {
	receiptOrder = inventoryReceiptCmd.Flags().String("order", "", "Order number to stamp on the delivery batch.")
	removeQty = inventoryRemoveCmd.Flags().Float64("qty", 1, "How much to consume.")

	inventoryCmd.AddCommand(inventoryShowCmd)
	inventoryCmd.AddCommand(inventoryReceiptCmd)
	inventoryCmd.AddCommand(inventoryRemoveCmd)
	rootCmd.AddCommand(inventoryCmd)
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Inspect or modify the inventory ledger.",
}

var inventoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the products on hand and their delivery batches.",
	Run: func(cmd *cobra.Command, args []string) {
		ledger := openLedger(readConfig())

		items := ledger.Items()
		if len(items) == 0 {
			fmt.Println("inventory is empty")
			return
		}

		ids := make([]string, 0, len(items))
		for id := range items {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Quantity", "Unit", "Batches", "Last Added"})
		for _, id := range ids {
			item := items[id]
			t.AppendRow(table.Row{
				id, item.Name, item.Quantity, item.Unit,
				len(item.Deliveries), item.LastAdded,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var inventoryReceiptCmd = &cobra.Command{
	Use:   "receipt <file.json5> [--order <number>]",
	Short: "Records a delivery receipt as a new batch.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		items, err := configutil.ReadConfig[[]inventory.ReceiptItem](args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		ledger := openLedger(readConfig())
		if err := ledger.AddItemsFromReceipt(cmd.Context(), items, *receiptOrder); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Printf("recorded %d items\n", len(items))
	},
}

var inventoryRemoveCmd = &cobra.Command{
	Use:   "remove <productID> [--qty <n>]",
	Short: "Consumes some of a product, oldest delivery batches first.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ledger := openLedger(readConfig())
		if err := ledger.RemoveItem(cmd.Context(), args[0], *removeQty); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	},
}
