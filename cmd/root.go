package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "notify",
	Short: "Payment notification microservice",
	Long:  "A notification microservice that tracks on-chain stablecoin payments and delivers signed webhook events with retries.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
