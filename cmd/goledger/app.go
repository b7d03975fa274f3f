package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hed1ad/goledger/pkg/config"
	"github.com/hed1ad/goledger/pkg/io/csv"
	"github.com/hed1ad/goledger/pkg/ledger"
	"github.com/hed1ad/goledger/pkg/metrics"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	ledgerPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
	reg    *prometheus.Registry
	book   *ledger.Book
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg

	a.logger, err = newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	opts := []ledger.Option{ledger.WithLogger(a.logger)}
	if cfg.Metrics.Enabled {
		a.reg = prometheus.NewRegistry()
		opts = append(opts, ledger.WithMetrics(metrics.New(a.reg)))
	}

	a.book, err = ledger.New(cfg, opts...)
	if err != nil {
		return err
	}

	if a.ledgerPath == "" {
		return nil
	}
	return a.load(ctx)
}

func (a *app) load(ctx context.Context) error {
	r, err := csv.NewReader(a.ledgerPath, csv.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer r.Close()

	records, err := r.Stream(ctx)
	if err != nil {
		return err
	}

	added := 0
	for rec := range records {
		if _, err := a.book.Add(rec); err != nil {
			a.logger.Warn("record rejected", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		added++
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.logger.Info("ledger loaded",
		zap.String("path", a.ledgerPath),
		zap.Int("records", added),
		zap.Int("skipped_rows", r.Skipped()),
	)
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// writeMetrics prints every gathered sample as name{labels} value.
func (a *app) writeMetrics(w io.Writer) error {
	if a.reg == nil {
		return nil
	}
	families, err := a.reg.Gather()
	if err != nil {
		return err
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			value := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)

	fmt.Fprintln(w, "\nmetrics:")
	for _, l := range lines {
		fmt.Fprintln(w, " ", l)
	}
	return nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = lvl
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
