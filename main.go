package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"events-cache/config"
	"events-cache/di"
	"events-cache/logging"
	services "events-cache/service"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
)

// Exit codes of the refresh command. 75 is EX_TEMPFAIL: try again later.
const (
	EXIT_COMPLETED       = 0
	EXIT_FAILED          = 1
	EXIT_RETRY_SCHEDULED = 75
)

func main() {
	app := &cli.App{
		Name:  "events-cache",
		Usage: "refresh and serve the daily events cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{config.ConfigPathEnvVar},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server under supervision",
				Action: serve,
			},
			{
				Name:  "refresh",
				Usage: "run one cache refresh cycle (for an external cron)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "follow",
						Usage: "keep retrying in-process until the cycle completes or fails",
					},
				},
				Action: refresh,
			},
			{
				Name:  "status",
				Usage: "print the current run status record",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "history",
						Usage: "also print the N most recent records",
					},
				},
				Action: status,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logging.Error().Err(err).Msg("[Main] exiting")
		os.Exit(EXIT_FAILED)
	}
}

func newContainer(c *cli.Context) (*di.Container, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return di.NewContainer(c.Context, cfg)
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := newContainer(c)
	if err != nil {
		return err
	}
	defer container.Close()

	tree := container.Supervisor()
	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("[Main] services did not stop in time")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("[Main] server exiting")
	return nil
}

type refreshOutput struct {
	RunID       string `json:"runId"`
	Window      string `json:"window"`
	State       string `json:"state"`
	EventsCount int    `json:"eventsCount"`
	GeoPoints   int    `json:"geoPoints"`
	GeoFailures int    `json:"geoFailures"`
	RetryCount  int    `json:"retryCount"`
	MaxRetries  int    `json:"maxRetries"`
	Error       string `json:"error,omitempty"`
}

func refresh(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := newContainer(c)
	if err != nil {
		return err
	}
	defer container.Close()

	var result services.RefreshResult
	if c.Bool("follow") {
		result = container.EventsRefresherService.RunWithRetries(ctx)
	} else {
		result = container.EventsRefresherService.RefreshOnce(ctx)
	}

	out := refreshOutput{
		RunID:       result.RunID,
		Window:      result.Window.Date(),
		State:       string(result.State),
		EventsCount: result.EventsCount,
		GeoPoints:   result.GeoPoints,
		GeoFailures: len(result.GeoOutcome.Failed),
		RetryCount:  result.RetryCount,
		MaxRetries:  result.MaxRetries,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	if err := printJSON(c, out); err != nil {
		return err
	}

	switch result.State {
	case services.RefreshCompleted:
		return nil
	case services.RefreshRetryScheduled:
		return cli.Exit("", EXIT_RETRY_SCHEDULED)
	default:
		return cli.Exit("", EXIT_FAILED)
	}
}

func status(c *cli.Context) error {
	container, err := newContainer(c)
	if err != nil {
		return err
	}
	defer container.Close()

	current, err := container.RunStatusTracker.Read(c.Context)
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	if n := c.Int("history"); n > 0 {
		history, err := container.RunStatusTracker.History(c.Context, n)
		if err != nil {
			return fmt.Errorf("read run status history: %w", err)
		}
		return printJSON(c, map[string]interface{}{"status": current, "history": history})
	}
	return printJSON(c, current)
}

func printJSON(c *cli.Context, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}
