package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(searchCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verifies the configured credentials against the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		client := createClient(readConfig())
		defer client.Close()

		if err := client.Login(cmd.Context()); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println("login ok")
	},
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Fetches clubcard points, the next delivery and the basket.",
	Run: func(cmd *cobra.Command, args []string) {
		client := createClient(readConfig())
		defer client.Close()

		data, err := client.GetData(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		fmt.Printf("clubcard points: %d\n", data.ClubcardPoints)
		if data.DeliveryInfo.NextDelivery != "" {
			fmt.Printf("next delivery: %s %s\n",
				data.DeliveryInfo.NextDelivery, data.DeliveryInfo.DeliverySlot)
		}
		if data.DeliveryInfo.OrderNumber != "" {
			fmt.Printf("order number: %s\n", data.DeliveryInfo.OrderNumber)
		}

		if len(data.BasketItems) == 0 {
			fmt.Println("basket is empty")
			return
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Item", "Quantity"})
		for _, item := range data.BasketItems {
			t.AppendRow(table.Row{item.Name, item.Quantity})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Searches the grocery catalog.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := createClient(readConfig())
		defer client.Close()

		products := client.SearchProducts(cmd.Context(), args[0])
		if len(products) == 0 {
			fmt.Println("no products found")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Price"})
		for _, p := range products {
			t.AppendRow(table.Row{p.ID, p.Name, p.Price})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
