package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowd",
	Short: "Chatbot flow engine: authoring API, validator and conversation runtime",
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
