package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yourusername/traceboard/pkg/analytics"
	"github.com/yourusername/traceboard/pkg/logging"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
)

var (
	compareOp       string
	compareColumnar bool
)

var compareCmd = &cobra.Command{
	Use:   "compare [query.json]",
	Short: "Run a query on both backends and list their discrepancies",
	Long: `Run a query file against Elasticsearch and ClickHouse at once and print
every value on which the two backends disagree beyond the tolerance.

--op selects the operation; lookups only use the scope of the query file.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareOp, "op", "timeseries", "operation to compare (timeseries, top-documents, feedbacks)")
	compareCmd.Flags().BoolVar(&compareColumnar, "columnar-primary", false, "treat ClickHouse as the authoritative backend")
}

// fixedFlags enables the columnar backend for every tenant, or for none
type fixedFlags bool

func (f fixedFlags) ColumnarEnabled(context.Context, string) (bool, error) {
	return bool(f), nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	reg := registry.Default()
	q, err := readQuery(args[0], reg)
	if err != nil {
		return err
	}

	b, err := openBackends(cfg, reg)
	if err != nil {
		return err
	}
	defer b.Close()
	if b.search == nil || b.columnar == nil {
		return errors.New("compare needs both storage.search and storage.clickhouse configured")
	}

	var drift []string
	facade := analytics.NewFacade(b.search, b.columnar, fixedFlags(compareColumnar),
		analytics.WithComparison(true),
		analytics.WithDriftHandler(func(_ analytics.Kind, discrepancies []string) {
			drift = append(drift, discrepancies...)
		}),
	)

	ctx, cancel := context.WithTimeout(logger.WithContext(cmd.Context()), cfg.Analytics.QueryTimeout)
	defer cancel()

	switch compareOp {
	case "timeseries":
		_, err = facade.Timeseries(ctx, q)
	case "top-documents":
		_, err = facade.TopDocuments(ctx, models.DocumentsQuery{Scope: q.Scope})
	case "feedbacks":
		_, err = facade.FeedbackEvents(ctx, models.FeedbackQuery{Scope: q.Scope})
	default:
		return fmt.Errorf("unknown operation %q", compareOp)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(drift) == 0 {
		fmt.Fprintln(out, "backends agree")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Discrepancy"})
	table.SetAutoWrapText(false)
	for i, d := range drift {
		table.Append([]string{strconv.Itoa(i + 1), d})
	}
	table.Render()
	return nil
}
