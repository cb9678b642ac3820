// Command payrec-batch runs one reconciliation from local workbook files
// and writes the styled statement, without going through the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/payrec/payrec/internal/app"
	"github.com/payrec/payrec/internal/export"
	"github.com/payrec/payrec/internal/ledger"
	"github.com/payrec/payrec/internal/recon"
	"github.com/payrec/payrec/internal/supplier"
)

func main() {
	ledgerPath := flag.String("ledger", "", "general ledger workbook (.xls or .xlsx)")
	balancePath := flag.String("balance", "", "trial balance workbook (.xls or .xlsx)")
	outPath := flag.String("out", "rapprochement.xlsx", "output workbook path")
	purchase := flag.String("purchase", "", "comma-separated purchase journal codes (overrides env)")
	bank := flag.String("bank", "", "comma-separated bank journal codes (overrides env)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if *ledgerPath == "" || *balancePath == "" {
		fmt.Fprintln(os.Stderr, "both -ledger and -balance are required")
		flag.Usage()
		os.Exit(2)
	}

	engineCfg := recon.DefaultConfig()
	engineCfg.PurchaseJournals = cfg.PurchaseJournals
	engineCfg.BankJournals = cfg.BankJournals
	engineCfg.PayablePrefix = cfg.PayablePrefix
	engineCfg.EffectsPrefix = cfg.EffectsPrefix
	if *purchase != "" {
		engineCfg.PurchaseJournals = splitCodes(*purchase)
	}
	if *bank != "" {
		engineCfg.BankJournals = splitCodes(*bank)
	}

	if err := run(ctx, logger, engineCfg, *ledgerPath, *balancePath, *outPath); err != nil {
		logger.Error("batch run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg recon.Config, ledgerPath, balancePath, outPath string) error {
	entries, err := loadLedger(ledgerPath)
	if err != nil {
		return err
	}
	suppliers, err := loadSuppliers(balancePath)
	if err != nil {
		return err
	}
	logger.Info("inputs loaded",
		slog.Int("entries", len(entries)),
		slog.Int("suppliers", len(suppliers)),
	)

	engine, err := recon.New(cfg, logger)
	if err != nil {
		return err
	}
	report, err := engine.Run(ctx, entries, suppliers)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	if err := export.Workbook(report, out); err != nil {
		return err
	}

	logger.Info("statement written",
		slog.String("path", outPath),
		slog.Int("rows", len(report.Rows)),
		slog.Float64("total", report.TotalBalance),
		slog.Bool("balanced", report.Balanced),
	)
	return nil
}

func loadLedger(path string) ([]ledger.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	return ledger.Load(f, filepath.Base(path))
}

func loadSuppliers(path string) (supplier.Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open balance: %w", err)
	}
	defer f.Close()
	return supplier.Load(f, filepath.Base(path))
}

func splitCodes(raw string) []string {
	var codes []string
	for _, code := range strings.Split(raw, ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
