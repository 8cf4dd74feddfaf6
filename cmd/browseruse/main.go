package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"BrowserUse-Gateway/sdk/go/browseruse"
)

// Exit codes for the run command, one per terminal state.
var exitCodes = map[browseruse.State]int{
	browseruse.StateCompleted:        0,
	browseruse.StateExecutionFailed:  1,
	browseruse.StateSubmissionFailed: 2,
	browseruse.StateQueryFailed:      3,
	browseruse.StateTimedOut:         4,
	browseruse.StateCancelled:        130,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		var coded cli.ExitCoder
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "browseruse",
		Usage:     "submit objectives to a BrowserUse gateway and wait for them",
		Writer:    out,
		ErrWriter: os.Stderr,
		// main decides the exit status.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "gateway base URL",
				Value:   "http://localhost:4999",
				EnvVars: []string{"BROWSER_USE_API_URL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "probe",
				Usage:  "check that the gateway is alive",
				Action: probe,
			},
			{
				Name:      "submit",
				Usage:     "submit an objective and print its task id",
				ArgsUsage: "<objective>",
				Action:    submit,
			},
			{
				Name:      "query",
				Usage:     "print the status of a task",
				ArgsUsage: "<task_id>",
				Action:    query,
			},
			{
				Name:      "run",
				Usage:     "submit an objective and poll until it finishes",
				ArgsUsage: "<objective>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Value: browseruse.DefaultPollInterval, Usage: "delay between status queries"},
					&cli.DurationFlag{Name: "timeout", Value: browseruse.DefaultPollTimeout, Usage: "give up after this long"},
					&cli.Float64Flag{Name: "backoff", Value: 1, Usage: "interval multiplier after each processing response"},
					&cli.DurationFlag{Name: "max-interval", Usage: "cap for the grown interval"},
				},
				Action: run,
			},
		},
	}
}

func client(c *cli.Context) (*browseruse.Client, error) {
	cl, err := browseruse.NewClient(c.String("url"), nil)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return cl, nil
}

func objectiveArg(c *cli.Context) (string, error) {
	objective := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if objective == "" {
		return "", cli.Exit("an objective is required", 2)
	}
	return objective, nil
}

func probe(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	if err := cl.Probe(c.Context); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	_, _ = fmt.Fprintln(c.App.Writer, "the service is alive")
	return nil
}

func submit(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	objective, err := objectiveArg(c)
	if err != nil {
		return err
	}
	id, err := cl.Submit(c.Context, objective)
	if err != nil {
		return cli.Exit(err.Error(), exitCodes[browseruse.StateSubmissionFailed])
	}
	_, _ = fmt.Fprintln(c.App.Writer, id)
	return nil
}

func query(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	id := c.Args().First()
	if id == "" {
		return cli.Exit("a task id is required", 2)
	}
	status, err := cl.Query(c.Context, id)
	if err != nil {
		return cli.Exit(err.Error(), exitCodes[browseruse.StateQueryFailed])
	}
	return printJSON(c.App.Writer, status)
}

type runReport struct {
	State   browseruse.State      `json:"state"`
	TaskID  string                `json:"task_id,omitempty"`
	Message string                `json:"message"`
	Elapsed string                `json:"elapsed"`
	Polls   int                   `json:"polls"`
	Status  *browseruse.JobStatus `json:"job,omitempty"`
}

func run(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	objective, err := objectiveArg(c)
	if err != nil {
		return err
	}
	out := cl.Run(c.Context, objective, browseruse.PollOptions{
		Interval:    c.Duration("interval"),
		Timeout:     c.Duration("timeout"),
		Backoff:     c.Float64("backoff"),
		MaxInterval: c.Duration("max-interval"),
	})
	report := runReport{
		State:   out.State,
		TaskID:  out.TaskID,
		Message: out.Message,
		Elapsed: out.Elapsed.String(),
		Polls:   out.Polls,
		Status:  out.Status,
	}
	if err := printJSON(c.App.Writer, report); err != nil {
		return err
	}
	if code := exitCodes[out.State]; code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
