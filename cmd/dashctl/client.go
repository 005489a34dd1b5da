package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/infrastructure/coingecko"
	"crypto-dashboard/internal/logging"
)

// newClient builds a market-data client from the same settings as the server.
func newClient() (*coingecko.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	client := coingecko.NewClient(coingecko.Config{
		BaseURL:           cfg.Market.BaseURL,
		APIKey:            cfg.Market.APIKey,
		VsCurrency:        cfg.Market.VsCurrency,
		Timeout:           cfg.Market.Timeout,
		RequestsPerSecond: cfg.Market.RequestsPerSecond,
	}, logger)
	return client, cfg, nil
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
}
