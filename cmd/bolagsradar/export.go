package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/sink"
)

var exportFlags struct {
	format string
	out    string
	limit  int
}

var exportCmd = &subcommand{
	short: "drain the Graph Sink queue to CSV or newline-delimited JSON",
	registerFlags: func(fs *flag.FlagSet) {
		fs.StringVar(&exportFlags.format, "format", "csv", "output format: csv or json")
		fs.StringVar(&exportFlags.out, "out", "", "output file path (default: stdout)")
		fs.IntVar(&exportFlags.limit, "limit", 0, "maximum records to export (0 = drain entire queue)")
	},
	run: runExport,
}

func runExport(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error {
	if exportFlags.format != "csv" && exportFlags.format != "json" {
		return fmt.Errorf("unsupported export format %q (want csv or json)", exportFlags.format)
	}

	db, err := openDB(config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	queueSink, err := sink.NewQueueSink(db.Raw(), "graph-sink")
	if err != nil {
		return fmt.Errorf("open graph sink queue: %w", err)
	}

	out := os.Stdout
	if exportFlags.out != "" {
		f, err := os.Create(exportFlags.out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var written int
	ctx := context.Background()

	if exportFlags.format == "json" {
		written, err = exportJSON(ctx, queueSink, out, exportFlags.limit)
	} else {
		written, err = exportCSV(ctx, queueSink, out, exportFlags.limit)
	}
	if err != nil {
		return err
	}

	logger.Info().Int("records", written).Str("format", exportFlags.format).Msg("Export complete")
	return nil
}

func exportJSON(ctx context.Context, queueSink *sink.QueueSink, out *os.File, limit int) (int, error) {
	encoder := json.NewEncoder(out)
	var count int
	for limit == 0 || count < limit {
		record, ack, err := queueSink.Receive(ctx)
		if errors.Is(err, sink.ErrNoMessage) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("receive record: %w", err)
		}
		if err := encoder.Encode(record); err != nil {
			return count, fmt.Errorf("encode record: %w", err)
		}
		if err := ack(); err != nil {
			return count, fmt.Errorf("acknowledge record: %w", err)
		}
		count++
	}
	return count, nil
}

var csvHeader = []string{
	"org_nr", "name", "legal_form", "status", "municipality", "county",
	"fiscal_year", "revenue", "net_profit", "employee_count", "updated_at",
}

func exportCSV(ctx context.Context, queueSink *sink.QueueSink, out *os.File, limit int) (int, error) {
	writer := csv.NewWriter(out)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	var count int
	for limit == 0 || count < limit {
		record, ack, err := queueSink.Receive(ctx)
		if errors.Is(err, sink.ErrNoMessage) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("receive record: %w", err)
		}
		if err := writer.Write(companyCSVRow(record)); err != nil {
			return count, fmt.Errorf("write csv row: %w", err)
		}
		if err := ack(); err != nil {
			return count, fmt.Errorf("acknowledge record: %w", err)
		}
		count++
	}
	return count, nil
}

func companyCSVRow(r *models.CompanyRecord) []string {
	var fiscalYear, revenue, netProfit, employeeCount string
	if n := len(r.Financials); n > 0 {
		latest := r.Financials[n-1]
		fiscalYear = strconv.Itoa(latest.FiscalYear)
		if latest.Revenue != nil {
			revenue = strconv.FormatFloat(*latest.Revenue, 'f', 2, 64)
		}
		if latest.NetProfit != nil {
			netProfit = strconv.FormatFloat(*latest.NetProfit, 'f', 2, 64)
		}
		if latest.EmployeeCount != nil {
			employeeCount = strconv.Itoa(*latest.EmployeeCount)
		}
	}

	return []string{
		r.OrgNr.String(),
		r.Name,
		r.LegalForm,
		r.Status,
		r.Address.Municipality,
		r.Address.County,
		fiscalYear,
		revenue,
		netProfit,
		employeeCount,
		r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
