package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// runTool opens an invoker, runs one tool and prints its result.
func runTool(cmd *cobra.Command, tool string, args map[string]any) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	inv, err := newInvoker(ctx)
	if err != nil {
		return err
	}
	defer inv.Close(context.WithoutCancel(ctx))

	result, err := inv.Invoke(ctx, tool, args)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func toolCmd(use, short, tool string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTool(cmd, tool, map[string]any{})
		},
	}
}

var (
	optimizeCmd  = toolCmd("optimize", "Rescore every memory and apply tier changes", "memory_optimize")
	decayCmd     = toolCmd("decay", "Decay relationship strengths and prune exhausted relationships", "memory_decay")
	analyticsCmd = toolCmd("analytics", "Summarize the relationship graph", "memory_graph_analytics")
	healthCmd    = toolCmd("health", "Report engine health", "memory_health")
)

var (
	addOwner      string
	addType       string
	addImportance int
	addTags       []string

	addCmd = &cobra.Command{
		Use:   "add <content>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{
				"content":  strings.Join(args, " "),
				"owner_id": addOwner,
				"tags":     addTags,
			}
			if addType != "" {
				payload["type"] = addType
			}
			if cmd.Flags().Changed("importance") {
				payload["importance"] = addImportance
			}
			return runTool(cmd, "memory_create", payload)
		},
	}
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Retrieve a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, "memory_retrieve", map[string]any{"id": args[0]})
	},
}

var (
	searchMode      string
	searchLimit     int
	searchTags      []string
	searchThreshold float64

	searchCmd = &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{
				"query": strings.Join(args, " "),
				"limit": searchLimit,
				"tags":  searchTags,
			}
			if cmd.Flags().Changed("threshold") {
				payload["threshold"] = searchThreshold
			}
			switch searchMode {
			case "lexical":
				return runTool(cmd, "memory_search", payload)
			case "hybrid":
				payload["semantic"] = true
				return runTool(cmd, "memory_search", payload)
			case "semantic":
				return runTool(cmd, "memory_semantic_search", payload)
			default:
				return fmt.Errorf("unknown search mode %q (lexical, hybrid or semantic)", searchMode)
			}
		},
	}
)

var (
	relateType       string
	relateStrength   float64
	relateConfidence float64

	relateCmd = &cobra.Command{
		Use:   "relate <from-id> <to-id>",
		Short: "Create a relationship between two memories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, "memory_relate", map[string]any{
				"from_id":    args[0],
				"to_id":      args[1],
				"type":       relateType,
				"strength":   relateStrength,
				"confidence": relateConfidence,
			})
		},
	}
)

var (
	relatedDepth int

	relatedCmd = &cobra.Command{
		Use:   "related <id>",
		Short: "List memories connected to a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, "memory_related", map[string]any{"id": args[0], "max_depth": relatedDepth})
		},
	}
)

func init() {
	addCmd.Flags().StringVar(&addOwner, "owner", "", "owner id (defaults to --caller)")
	addCmd.Flags().StringVar(&addType, "type", "", "memory type: text, image, audio, video or file")
	addCmd.Flags().IntVar(&addImportance, "importance", 50, "importance from 0 to 100")
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "tag (repeatable)")

	searchCmd.Flags().StringVar(&searchMode, "mode", "lexical", "lexical, hybrid or semantic")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "required tag (repeatable)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0.5, "minimum similarity for semantic results")

	relateCmd.Flags().StringVar(&relateType, "type", "related", "references, similar, related, causal or temporal")
	relateCmd.Flags().Float64Var(&relateStrength, "strength", 0.8, "strength from 0 to 1")
	relateCmd.Flags().Float64Var(&relateConfidence, "confidence", 1, "confidence from 0 to 1")

	relatedCmd.Flags().IntVar(&relatedDepth, "depth", 2, "maximum hops")
}
