package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/stockcast/internal/app"
	"github.com/andresuchdata/stockcast/internal/config"
	"github.com/andresuchdata/stockcast/pkg/logger"
)

const appKeyName = "app"

func setup(c *cli.Context) error {
	cfg := config.Load()
	if c.IsSet("regressor") {
		cfg.Model.Regressor = c.String("regressor")
	}
	logger.SetLevel(c.String("log-level"))

	a, err := app.New(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	c.App.Metadata[appKeyName] = a
	return nil
}

func teardown(c *cli.Context) error {
	if a, ok := c.App.Metadata[appKeyName].(*app.App); ok && a != nil {
		a.Close()
	}
	return nil
}

func fromContext(c *cli.Context) *app.App {
	return c.App.Metadata[appKeyName].(*app.App)
}

// loadModel loads the stored snapshot, training one when none is usable.
func loadModel(c *cli.Context) (*app.App, error) {
	a := fromContext(c)
	if err := a.Forecast.Bootstrap(c.Context); err != nil {
		return nil, err
	}
	return a, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cliApp := &cli.App{
		Name:     "forecast",
		Usage:    "Train the demand model and query forecasts from the command line",
		Metadata: map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "regressor",
				Usage: "Override MODEL_REGRESSOR (forest or ridge)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:  "train",
				Usage: "Retrain the model on the configured ledger and store the snapshot",
				Action: func(c *cli.Context) error {
					report, err := fromContext(c).Forecast.Train(c.Context)
					if err != nil {
						return err
					}
					return printJSON(report)
				},
			},
			{
				Name:  "predict",
				Usage: "Print the 7/14/30 day forecast of one or more products",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{
						Name:     "product-id",
						Aliases:  []string{"p"},
						Usage:    "Product id to forecast (repeatable)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "horizon",
						Usage: "Forecast a single horizon in days instead of 7/14/30",
					},
				},
				Action: func(c *cli.Context) error {
					a, err := loadModel(c)
					if err != nil {
						return err
					}
					for _, id := range c.IntSlice("product-id") {
						if c.IsSet("horizon") {
							prediction, err := a.Forecast.PredictHorizon(id, c.Int("horizon"))
							if err != nil {
								return err
							}
							if err := printJSON(prediction); err != nil {
								return err
							}
							continue
						}
						prediction, err := a.Forecast.Predict(c.Context, id)
						if err != nil {
							return err
						}
						if err := printJSON(prediction); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:  "alerts",
				Usage: "Print stockout alerts ranked by urgency",
				Action: func(c *cli.Context) error {
					a, err := loadModel(c)
					if err != nil {
						return err
					}
					alerts, err := a.Forecast.Alerts(c.Context)
					if err != nil {
						return err
					}
					return printJSON(alerts)
				},
			},
			{
				Name:  "ingest",
				Usage: "Load daily sales exports (YYYYMMDD*.csv) into the sales table",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "prefix",
						Usage:   "Only ingest object keys under this prefix",
						EnvVars: []string{"INGEST_PREFIX"},
					},
					&cli.BoolFlag{
						Name:  "train",
						Usage: "Retrain the model once ingest succeeds",
					},
				},
				Action: func(c *cli.Context) error {
					a := fromContext(c)
					summary, err := a.Ingest(c.Context, c.String("prefix"))
					if err != nil {
						return err
					}
					if err := printJSON(summary); err != nil {
						return err
					}
					if !c.Bool("train") {
						return nil
					}
					report, err := a.Forecast.Train(c.Context)
					if err != nil {
						return err
					}
					return printJSON(report)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("forecast command failed")
	}
}
