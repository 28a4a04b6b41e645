// Command predictctl runs predictions and ledger maintenance from the shell.
package main

import (
	"github.com/alecthomas/kong"

	"expense-predictor/internal/cli"
	"expense-predictor/internal/config"
	"expense-predictor/internal/log"
)

// globals are shared by every command. Empty flags fall back to the
// environment configuration.
type globals struct {
	Model   string `help:"Model artifact path (overrides MODEL_PATH)." type:"path"`
	Encoder string `help:"Label encoder path (overrides ENCODER_PATH)." type:"path"`
	Format  string `help:"Model format: auto, linear or onnx (overrides MODEL_FORMAT)."`
	Backend string `help:"Ledger backend: xlsx, memory, sqlite or sheets (overrides LEDGER_BACKEND)."`
	Ledger  string `help:"xlsx ledger path (overrides LEDGER_PATH)." type:"path"`
}

// app is what the commands run against.
type app struct {
	cfg    *config.Config
	logger *log.Logger
}

var commands struct {
	Globals globals `embed:""`

	Predict predictCmd `cmd:"" help:"Predict the category of a description without recording it."`
	Record  recordCmd  `cmd:"" help:"Predict a category and append the transaction to the ledger."`
	List    listCmd    `cmd:"" help:"Print ledger rows and per-category totals."`
	Export  exportCmd  `cmd:"" help:"Write the SQLite transaction log to an xlsx ledger."`
}

func (g *globals) load() (*app, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if g.Model != "" {
		cfg.ModelPath = g.Model
	}
	if g.Encoder != "" {
		cfg.EncoderPath = g.Encoder
	}
	if g.Format != "" {
		cfg.ModelFormat = g.Format
	}
	if g.Backend != "" {
		cfg.LedgerBackend = g.Backend
	}
	if g.Ledger != "" {
		cfg.LedgerPath = g.Ledger
	}
	// Only warnings and errors unless LOG_LEVEL asks for more.
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	logger := cli.SetupLogger(cfg, "predictctl")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func main() {
	ctx := kong.Parse(&commands,
		kong.Name("predictctl"),
		kong.Description("Expense category predictor command line."),
		kong.UsageOnError())
	a, err := commands.Globals.load()
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(a))
}
