package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"codeberg.org/docforge/server/internal/progress"
)

const usageText = `usage: docctl <command> [flags]

commands:
  ops                               list operations and whether your tier includes them
  usage                             show quota, rate limit and today's usage
  run [flags] <operation> <file> [key=value...]
                                    upload a file and run an operation
  download [-o dir] <artifact-id>   fetch a staged artifact (single use)

environment:
  DOCFORGE_API_ENDPOINT   server base URL (default http://localhost:8080)
  DOCFORGE_TOKEN          bearer token, omit to run anonymously
  DOCFORGE_CLIENT_ID      stable anonymous client id
`

func main() {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, NewClientFromEnv(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, client *Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usageText)
		return nil
	}

	switch args[0] {
	case "ops", "operations":
		return listOperations(ctx, client, out)
	case "usage":
		return showUsage(ctx, client, out)
	case "run":
		return runOperation(ctx, client, args[1:], out)
	case "download":
		return download(ctx, client, args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usageText)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func listOperations(ctx context.Context, client *Client, out io.Writer) error {
	list, err := client.Operations(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, titleStyle.Render("operations ("+list.Tier+" tier)"))

	for _, op := range list.Operations {
		name := commandStyle.Render(fmt.Sprintf("%-22s", op.Name))
		desc := commandDescStyle.Render(op.Description)

		if !op.Available {
			name = unavailableStyle.Render(fmt.Sprintf("%-22s", op.Name))
			desc = unavailableStyle.Render(op.Description + " (requires " + op.Feature + ")")
		}

		fmt.Fprintln(out, lipgloss.JoinHorizontal(lipgloss.Top, name, desc))

		for _, p := range op.Params {
			line := "    " + p.Name
			if p.Required {
				line += " (required)"
			}
			if p.Default != "" {
				line += " default=" + p.Default
			}
			if len(p.Allowed) > 0 {
				line += " one of " + strings.Join(p.Allowed, "|")
			}

			fmt.Fprintln(out, helpStyle.UnsetMarginTop().Render(line))
		}
	}

	return nil
}

func showUsage(ctx context.Context, client *Client, out io.Writer) error {
	u, err := client.Usage(ctx)
	if err != nil {
		return err
	}

	remaining := "unlimited"
	if u.DailyRemaining >= 0 {
		remaining = fmt.Sprint(u.DailyRemaining)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		row("tier", u.Tier),
		row("today", fmt.Sprintf("%d / %s", u.Daily.Used, formatLimit(u.Daily.Limit))),
		row("remaining today", remaining),
		row("this month", fmt.Sprintf("%d / %s", u.Monthly.Used, formatLimit(u.Monthly.Limit))),
		row("succeeded today", u.SucceededToday),
		row("rate limit", fmt.Sprintf("%d per %ds", u.RateLimit.Limit, u.RateLimit.WindowSeconds)),
		row("max input", formatBytes(u.MaxInputBytes)),
		row("features", strings.Join(u.Features, ", ")),
		row("resets", u.ResetDate.Format("2006-01-02")),
	)

	fmt.Fprintln(out, titleStyle.Render("usage"))
	fmt.Fprintln(out, boxStyle.Render(body))

	return nil
}

func runOperation(ctx context.Context, client *Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	outDir := fs.String("o", ".", "directory for the result")
	// progress is streamed by default only when a person is watching
	quiet := fs.Bool("q", !term.IsTerminal(os.Stdout.Fd()), "do not stream progress")
	noDownload := fs.Bool("no-download", false, "print the artifact id instead of downloading it")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 2 {
		return stderrors.New("run needs an operation and a file")
	}

	op, path := fs.Arg(0), fs.Arg(1)

	params, err := parseParams(fs.Args()[2:])
	if err != nil {
		return err
	}

	var progressID string
	watchDone := make(chan struct{})

	if *quiet {
		close(watchDone)
	} else {
		progressID = uuid.New().String()
		ready := make(chan struct{})
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			defer close(watchDone)

			err := client.Watch(watchCtx, progressID, ready, func(msg progress.Message) {
				printProgress(out, msg)
			})
			if err != nil {
				fmt.Fprintln(out, stderrStyle.Render("progress unavailable: "+err.Error()))
			}
		}()

		// subscribe before uploading so early lines are not missed
		<-ready
		defer func() {
			cancel()
			<-watchDone
		}()
	}

	result, err := client.Run(ctx, op, path, params, progressID, *outDir)
	if err != nil {
		return err
	}

	if result.Staged == nil {
		fmt.Fprintln(out, successStyle.Render("saved ")+result.SavedTo)
		return nil
	}

	staged := result.Staged
	fmt.Fprintln(out, row("artifact", staged.ArtifactID))
	fmt.Fprintln(out, row("files", staged.FileCount))
	fmt.Fprintln(out, row("size", formatBytes(staged.Size)))
	fmt.Fprintln(out, row("expires", staged.ExpiresAt.Local().Format("15:04:05")))

	if *noDownload {
		fmt.Fprintln(out, helpStyle.Render("docctl download "+staged.ArtifactID))
		return nil
	}

	saved, err := client.Download(ctx, staged.ArtifactID, *outDir)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, successStyle.Render("saved ")+saved)

	return nil
}

func download(ctx context.Context, client *Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(out)
	outDir := fs.String("o", ".", "directory for the archive")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return stderrors.New("download needs exactly one artifact id")
	}

	saved, err := client.Download(ctx, fs.Arg(0), *outDir)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, successStyle.Render("saved ")+saved)

	return nil
}

func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", arg)
		}

		if key == "file" || key == "progress_id" {
			return nil, fmt.Errorf("parameter name %q is reserved", key)
		}

		params[key] = value
	}

	return params, nil
}

func printProgress(out io.Writer, msg progress.Message) {
	switch msg.Type {
	case progress.TypeLine:
		var line progress.LinePayload
		if err := json.Unmarshal(msg.Payload, &line); err != nil {
			return
		}

		if line.Stream == "stderr" {
			fmt.Fprintln(out, stderrStyle.Render(line.Text))
		} else {
			fmt.Fprintln(out, stdoutStyle.Render(line.Text))
		}

	case progress.TypeDone:
		var done progress.DonePayload
		if err := json.Unmarshal(msg.Payload, &done); err != nil {
			return
		}

		if !done.Success {
			fmt.Fprintln(out, errorStyle.Render("failed: "+strings.ToLower(done.Code)))
		}

	case progress.TypeError:
		var e progress.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &e); err == nil {
			fmt.Fprintln(out, errorStyle.Render(e.Message))
		}

	case progress.TypeServerShutdown:
		fmt.Fprintln(out, stderrStyle.Render("server is shutting down"))
	}
}
