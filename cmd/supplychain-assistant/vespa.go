package main

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"
)

var vespaDevMode bool

var vespaCmd = &cobra.Command{
	Use:   "vespa",
	Short: "Manage the Vespa search cluster",
}

var vespaDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the user_document and knowledge schemas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := newVespaAdmin(loadConfig(), slog.Default())
		if err != nil {
			return err
		}
		result, err := admin.Deploy(cmd.Context(), vespaDevMode)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var vespaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cluster health and deployed schemas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := newVespaAdmin(loadConfig(), slog.Default())
		if err != nil {
			return err
		}
		status, err := admin.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, status)
	},
}

func init() {
	vespaDeployCmd.Flags().BoolVar(&vespaDevMode, "dev", false, "replace the application package instead of merging into it")
	vespaCmd.AddCommand(vespaDeployCmd, vespaStatusCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
