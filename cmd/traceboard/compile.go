package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage/clickhouse"
	"github.com/yourusername/traceboard/pkg/storage/elasticsearch"
)

var compileBackend string

var compileCmd = &cobra.Command{
	Use:   "compile [query.json]",
	Short: "Print the Elasticsearch body and ClickHouse SQL of a timeseries query",
	Long: `Compile a timeseries query file without contacting any backend.

The file holds tenantId, startDate, endDate, filters, series, groupBy and
timeScale, the same fields the timeseries endpoint accepts.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&compileBackend, "backend", "all", "backend to compile for (elasticsearch, clickhouse, all)")
}

// queryFile is the on-disk form of a timeseries query
type queryFile struct {
	TenantID  string              `json:"tenantId"`
	StartDate time.Time           `json:"startDate"`
	EndDate   time.Time           `json:"endDate"`
	Filters   models.Filters      `json:"filters"`
	Series    []models.SeriesSpec `json:"series"`
	GroupBy   string              `json:"groupBy"`
	TimeScale *models.TimeScale   `json:"timeScale"`
}

func readQuery(path string, reg *registry.Registry) (models.TimeseriesQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.TimeseriesQuery{}, fmt.Errorf("failed to read query file: %w", err)
	}
	var f queryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return models.TimeseriesQuery{}, fmt.Errorf("failed to parse query file: %w", err)
	}
	q := models.TimeseriesQuery{
		Scope: models.Scope{
			TenantID:  f.TenantID,
			StartDate: f.StartDate.UTC(),
			EndDate:   f.EndDate.UTC(),
			Filters:   f.Filters,
		},
		Series:    f.Series,
		GroupBy:   f.GroupBy,
		TimeScale: f.TimeScale,
	}
	if err := reg.ValidateQuery(q); err != nil {
		return models.TimeseriesQuery{}, err
	}
	return q, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg := registry.Default()
	q, err := readQuery(args[0], reg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch compileBackend {
	case "all", "elasticsearch", "clickhouse":
	default:
		return fmt.Errorf("unknown backend %q", compileBackend)
	}

	if compileBackend != "clickhouse" {
		plan, err := elasticsearch.NewCompiler(reg, cfg.Analytics.MaxBuckets, cfg.Storage.Search.TermsFallback).Compile(q)
		if err != nil {
			return err
		}
		body, err := json.MarshalIndent(plan.Request, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "-- elasticsearch (scale %s)\n%s\n", plan.Scale, body)
		for _, s := range plan.Series {
			fmt.Fprintf(out, "--   %s <- %s\n", s.Name, s.Path)
		}
	}

	if compileBackend != "elasticsearch" {
		compiled, err := clickhouse.NewCompiler(reg, cfg.Analytics.MaxBuckets).Compile(q)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "-- clickhouse\n%s\n", compiled.SQL)
		printParams(out, compiled.Params)
	}
	return nil
}

func printParams(out io.Writer, params map[string]string) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "--   {%s} = %q\n", name, params[name])
	}
}
