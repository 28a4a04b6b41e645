package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"expense-predictor/internal/backend"
	"expense-predictor/internal/classifier"
	"expense-predictor/internal/core"
	"expense-predictor/internal/log"
	"expense-predictor/internal/services"
	"expense-predictor/internal/sheets/xlsx"
	"expense-predictor/internal/storage"
)

type predictCmd struct {
	Description []string `arg:"" help:"Transaction description."`
}

func (c *predictCmd) Run(a *app) error {
	p, err := loadPredictor(a)
	if err != nil {
		return err
	}
	defer p.Close()

	category, err := p.Predict(context.Background(), strings.Join(c.Description, " "))
	if err != nil {
		return err
	}
	fmt.Println(category)
	return nil
}

type recordCmd struct {
	Description string `arg:"" help:"Transaction description."`
	Amount      string `arg:"" help:"Amount, with dot or comma decimals."`
}

func (c *recordCmd) Run(a *app) error {
	amount, err := core.ParseAmount(c.Amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", c.Amount, err)
	}

	p, err := loadPredictor(a)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := context.Background()
	res, err := openLedger(ctx, a)
	if err != nil {
		return err
	}
	defer res.Close()

	opts := []services.Option{
		services.WithLocation(a.cfg.Location()),
		services.WithLogger(a.logger.WithComponent(log.ComponentPredict)),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewPredictionService(p, res.Ledger, opts...)
	result, err := svc.Predict(ctx, services.PredictRequest{Description: c.Description, Amount: amount})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"category": result.Category,
		"recorded": result.Recorded,
		"ref":      result.Ref,
		"warning":  result.Warning,
	})
}

type listCmd struct {
	JSON bool `help:"Print JSON instead of a table."`
}

func (c *listCmd) Run(a *app) error {
	ctx := context.Background()
	res, err := openLedger(ctx, a)
	if err != nil {
		return err
	}
	defer res.Close()

	txs, err := res.Ledger.List(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		rows := make([][]string, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, tx.Row())
		}
		return json.NewEncoder(os.Stdout).Encode(rows)
	}
	return printTable(txs)
}

func printTable(txs []core.Transaction) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(core.Header, "\t"))
	for _, tx := range txs {
		fmt.Fprintln(w, strings.Join(tx.Row(), "\t"))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Category\tCount\tTotal")
	for _, t := range core.Summarize(txs) {
		fmt.Fprintf(w, "%s\t%d\t%s\n", t.Name, t.Count, t.Amount.StringFixed(2))
	}
	return w.Flush()
}

type exportCmd struct {
	Out   string `required:"" help:"Destination xlsx file." type:"path"`
	Sheet string `help:"Worksheet name (default Sheet1)."`
}

func (c *exportCmd) Run(a *app) error {
	if a.cfg.SQLiteDBPath == "" {
		return errors.New("SQLITE_DB_PATH is not set")
	}
	if _, err := os.Stat(a.cfg.SQLiteDBPath); err != nil {
		return fmt.Errorf("transaction log: %w", err)
	}
	repo, err := storage.NewSQLiteRepository(a.cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	sheet := c.Sheet
	if sheet == "" {
		sheet = xlsx.DefaultSheet
	}
	n, err := repo.Export(context.Background(), c.Out, sheet)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", n, c.Out)
	return nil
}

func loadPredictor(a *app) (*classifier.Predictor, error) {
	return classifier.Load(classifier.Options{
		ModelPath:      a.cfg.ModelPath,
		EncoderPath:    a.cfg.EncoderPath,
		Format:         a.cfg.ModelFormat,
		RuntimeLibrary: a.cfg.ONNXRuntimeLib,
	})
}

func openLedger(ctx context.Context, a *app) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(a.logger.WithComponent(log.ComponentLedger).Logger).CreateBackend(ctx, bcfg)
}
