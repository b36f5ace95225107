package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/edp1096/toy-bsim4/internal/logger"
)

var (
	logLevel   string
	logFormat  string
	jsonOutput bool
)

func main() {
	app := &cli.Command{
		Name:  "bsim4",
		Usage: "BSIM4 MOSFET evaluation bench",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "warn",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (text, json)",
				Value:       "text",
				Destination: &logFormat,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &jsonOutput,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := logger.ParseLevel(logLevel)
			log := logger.Text(os.Stderr, level)
			if logFormat == "json" {
				log = logger.JSON(os.Stderr, level)
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			evalCmd(),
			sweepCmd(),
			stampCmd(),
			opCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
