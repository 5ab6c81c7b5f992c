package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/runscan/pkg/catalog"
	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/json"
	"github.com/ajitpratap0/runscan/pkg/scan"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the columns of a catalog",
		RunE:  runInspect,
	}
	cmd.Flags().String("catalog", "", "Path to the catalog manifest (required)")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

type columnReport struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Width int    `json:"width,omitempty"`
	Rows  int64  `json:"rows"`
	Runs  int64  `json:"runs,omitempty"`
}

type catalogReport struct {
	Name      string         `json:"name"`
	TotalRows int64          `json:"total_rows"`
	Columns   []columnReport `json:"columns"`
}

func runInspect(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log, cleanup, err := setup(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opened, err := catalog.Load(ctx, v.GetString("catalog"), log)
	if err != nil {
		return err
	}
	defer opened.Close()

	report, err := inspect(ctx, opened)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func inspect(ctx context.Context, opened *catalog.Opened) (*catalogReport, error) {
	total, err := scan.New(opened.Catalog, nil, nil).TotalRows(ctx)
	if err != nil {
		return nil, err
	}
	report := &catalogReport{Name: opened.Name, TotalRows: total}
	for _, col := range opened.Catalog.Columns {
		switch c := col.(type) {
		case scan.Regular:
			info, err := c.Store.Describe(ctx, c.Ref)
			if err != nil {
				return nil, err
			}
			report.Columns = append(report.Columns, columnReport{
				Name: c.Name, Kind: config.KindRegular, Type: info.Type.String(), Width: info.Width, Rows: info.Rows,
			})
		case scan.RunEncoded:
			starts, err := c.Store.Describe(ctx, c.StartsRef)
			if err != nil {
				return nil, err
			}
			values, err := c.Store.Describe(ctx, c.ValuesRef)
			if err != nil {
				return nil, err
			}
			report.Columns = append(report.Columns, columnReport{
				Name: c.Name, Kind: config.KindRunEncoded, Type: values.Type.String(), Rows: total, Runs: starts.Rows,
			})
		}
	}
	return report, nil
}
