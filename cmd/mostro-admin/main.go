package main

import (
	"encoding/json"
	"fmt"
	"os"

	"mostrod/internal/admin"

	"github.com/spf13/cobra"
)

const defaultSocketPath = "/tmp/mostrod-admin.sock"

var (
	socketPath string
	asPubkey   string
)

var rootCmd = &cobra.Command{
	Use:   "mostro-admin",
	Short: "Operator CLI for a running mostrod daemon",
	Long:  `mostro-admin talks to a running mostrod over its Unix admin socket to settle disputes, manage solvers, and review orphaned payments.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath, "path to mostrod's admin socket")
	rootCmd.PersistentFlags().StringVar(&asPubkey, "as", "", "admin pubkey to act as")

	rootCmd.AddCommand(cancelOrderCmd)
	rootCmd.AddCommand(settleOrderCmd)
	rootCmd.AddCommand(takeDisputeCmd)
	rootCmd.AddCommand(addSolverCmd)
	rootCmd.AddCommand(removeSolverCmd)
	rootCmd.AddCommand(banUserCmd)
	rootCmd.AddCommand(unbanUserCmd)
	rootCmd.AddCommand(orphansCmd)
}

func main() {
	Execute()
}

func callAdmin(req admin.Request) {
	client := admin.NewClient(socketPath)
	resp, err := client.Call(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		var pretty any
		if err := json.Unmarshal(resp.Data, &pretty); err == nil {
			b, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(b))
			return
		}
	}
	fmt.Println("ok")
}

var cancelOrderCmd = &cobra.Command{
	Use:   "cancel-order <order-id>",
	Short: "Resolve a disputed or stuck order in the seller's favor",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "cancel-order", OrderID: args[0], Pubkey: asPubkey})
	},
}

var settleOrderCmd = &cobra.Command{
	Use:   "settle-order <order-id>",
	Short: "Resolve a disputed or stuck order in the buyer's favor",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "settle-order", OrderID: args[0], Pubkey: asPubkey})
	},
}

var takeDisputeCmd = &cobra.Command{
	Use:   "take-dispute <order-id>",
	Short: "Claim an order's open dispute for the acting solver",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "take-dispute", OrderID: args[0], Pubkey: asPubkey})
	},
}

var addSolverCmd = &cobra.Command{
	Use:   "add-solver <pubkey>",
	Short: "Grant a pubkey the dispute-solver role",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "add-solver", Pubkey: args[0]})
	},
}

var removeSolverCmd = &cobra.Command{
	Use:   "remove-solver <pubkey>",
	Short: "Revoke a pubkey's dispute-solver role",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "remove-solver", Pubkey: args[0]})
	},
}

var banUserCmd = &cobra.Command{
	Use:   "ban-user <pubkey>",
	Short: "Ban a pubkey from trading",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "ban-user", Pubkey: args[0]})
	},
}

var unbanUserCmd = &cobra.Command{
	Use:   "unban-user <pubkey>",
	Short: "Lift a trading ban on a pubkey",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "unban-user", Pubkey: args[0]})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List payments the reconciliation sweep could not match to an order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		callAdmin(admin.Request{Command: "orphans"})
	},
}
