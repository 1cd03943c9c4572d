package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yourusername/traceboard/pkg/auth"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage/badger"
)

var columnar bool

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenant analytics settings",
}

var tenantsSetCmd = &cobra.Command{
	Use:   "set [tenant]",
	Short: "Choose the authoritative backend of a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantsSet,
}

var tenantsShowCmd = &cobra.Command{
	Use:   "show [tenant]",
	Short: "Show the settings and labels of a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantsShow,
}

var tenantsLabelCmd = &cobra.Command{
	Use:   "label [tenant] [kind] [id] [label]",
	Short: "Set the display label of an id, e.g. a topic name",
	Args:  cobra.ExactArgs(4),
	RunE:  runTenantsLabel,
}

var tokenCmd = &cobra.Command{
	Use:   "token [tenant]",
	Short: "Issue an HS256 API token for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tenantsSetCmd.Flags().BoolVar(&columnar, "columnar", false, "serve the tenant from ClickHouse")

	tenantsCmd.AddCommand(tenantsSetCmd)
	tenantsCmd.AddCommand(tenantsShowCmd)
	tenantsCmd.AddCommand(tenantsLabelCmd)
}

func openTenants() (*badger.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return badger.NewStore(cfg.Storage.Badger)
}

func runTenantsSet(cmd *cobra.Command, args []string) error {
	store, err := openTenants()
	if err != nil {
		return err
	}
	defer store.Close()

	settings := badger.Settings{ColumnarEnabled: columnar, UpdatedAt: time.Now().UTC()}
	if err := store.SetSettings(cmd.Context(), args[0], settings); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: columnar=%t\n", args[0], columnar)
	return nil
}

func runTenantsShow(cmd *cobra.Command, args []string) error {
	store, err := openTenants()
	if err != nil {
		return err
	}
	defer store.Close()

	settings, err := store.Settings(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	updated := "never"
	if !settings.UpdatedAt.IsZero() {
		updated = settings.UpdatedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(out, "tenant %s: columnar=%t (updated %s)\n", args[0], settings.ColumnarEnabled, updated)

	labels, err := store.Labels(cmd.Context(), args[0], registry.LabelsTopics)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		return nil
	}
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Topic ID", "Label"})
	for _, id := range ids {
		table.Append([]string{id, labels[id]})
	}
	table.Render()
	return nil
}

func runTenantsLabel(cmd *cobra.Command, args []string) error {
	store, err := openTenants()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.PutLabel(cmd.Context(), args[0], args[1], args[2], args[3])
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	authenticator, err := auth.NewJWTAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := authenticator.IssueToken(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
