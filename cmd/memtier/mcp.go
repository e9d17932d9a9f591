package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory tools over MCP on stdio",
	Long: `Serve the memory tools to an MCP client over stdin/stdout. Logs go to the
configured log file or stderr. --caller scopes every call to one owner.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := commandLogger(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close(context.WithoutCancel(ctx))

		srv, err := a.tools.NewMCPServer("memtier", Version, callerID)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		logger.Info().Str("caller", callerID).Int("tools", len(a.tools.Names())).Msg("Serving MCP on stdio")
		return server.ServeStdio(srv)
	},
}
