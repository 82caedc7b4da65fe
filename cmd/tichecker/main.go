package main

import "github.com/spf13/cobra"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "tichecker",
		Short: "Transactional consistency checker for recorded histories",
	}
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.Execute()
}
