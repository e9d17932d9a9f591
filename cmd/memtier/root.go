package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aschepis/backscratcher/memtier/config"
)

var (
	cfgFile    string
	dbPath     string
	callerID   string
	remoteAddr string

	rootCmd = &cobra.Command{
		Use:   "memtier",
		Short: "Tiered memory store with semantic search and a relationship graph",
		Long: `memtier stores memories in hot, warm and cold tiers, ranks them by access,
importance, age and connectivity, searches them lexically or by embedding
similarity, and keeps a weighted graph of relationships between them.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.GetConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&callerID, "caller", os.Getenv("MEMTIER_CALLER"), "caller id; memories are created for and limited to this owner")
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "remote", "", "run against a memtier daemon at this socket path or host:port")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(healthCmd)
}
