package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var basketAddQty *int

func init() {
	basketAddQty = basketAddCmd.Flags().Int("qty", 1, "How many units to add.")
	basketCmd.AddCommand(basketShowCmd)
	basketCmd.AddCommand(basketAddCmd)
	rootCmd.AddCommand(basketCmd)
}

var basketCmd = &cobra.Command{
	Use:   "basket",
	Short: "Inspect or modify the shopping basket.",
}

var basketShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the current basket contents.",
	Run: func(cmd *cobra.Command, args []string) {
		client := createClient(readConfig())
		defer client.Close()

		items := client.GetBasket(cmd.Context())
		if len(items) == 0 {
			fmt.Println("basket is empty")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Item", "Quantity"})
		for _, item := range items {
			t.AppendRow(table.Row{item.Name, item.Quantity})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var basketAddCmd = &cobra.Command{
	Use:   "add <productID> [--qty <n>]",
	Short: "Adds a product to the basket.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := createClient(readConfig())
		defer client.Close()

		result := client.AddToBasket(cmd.Context(), args[0], *basketAddQty)
		if !result.Success {
			fmt.Fprintln(os.Stderr, result.Message)
			os.Exit(1)
		}
		fmt.Println(result.Message)
	},
}
