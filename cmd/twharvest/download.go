package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/engine"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
	"github.com/twharvest/twharvest/pkg/report"
	"github.com/twharvest/twharvest/pkg/session"
	"github.com/twharvest/twharvest/pkg/ui"
)

var (
	dlUsers          string
	dlUsersFile      string
	dlOut            string
	dlKinds          string
	dlMaxTweets      int
	dlConcurrency    int
	dlRetry          int
	dlUserRetry      int
	dlUserDelayMs    int
	dlRequestDelayMs int
	dlEngine         string
	dlJSONReport     string
	dlCSVReport      string
	dlFailuresReport string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download media for a list of handles",
	RunE:  runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	users, err := resolveUsers(dlUsers, dlUsersFile)
	if err != nil {
		return errors.Wrap(errors.Usage, err)
	}
	if dlOut == "" {
		return errors.New(errors.Usage, "--out is required")
	}

	kinds, err := parseKinds(dlKinds)
	if err != nil {
		return errors.Wrap(errors.Usage, err)
	}

	flags := map[string]interface{}{"out": dlOut}
	changed := cmd.Flags().Changed
	if changed("engine") {
		flags["engine"] = dlEngine
	}
	if changed("concurrency") {
		flags["concurrency"] = dlConcurrency
	}
	if changed("retry") {
		flags["retry"] = dlRetry
	}
	if changed("user-retry") {
		flags["user-retry"] = dlUserRetry
	}
	if changed("user-delay-ms") {
		flags["user-delay-ms"] = dlUserDelayMs
	}
	if changed("request-delay-ms") {
		flags["request-delay-ms"] = dlRequestDelayMs
	}
	if changed("max-tweets") {
		flags["max-tweets"] = dlMaxTweets
	}
	cfg.MergeCommandLineFlags(flags)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(errors.Usage, err)
	}

	scraper := engine.New(cfg, log)
	store := session.New(config.AppName, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		ui.PrintWarning("received interrupt, stopping after in-flight work completes")
		cancel()
	}()

	jobOpts := harvest.JobOptions{
		Store:             store,
		Users:             users,
		OutputDir:         cfg.Output.BaseDirectory,
		MediaKinds:        kinds,
		MaxTweetsPerUser:  cfg.Download.MaxTweetsPerUser,
		Concurrency:       cfg.Download.Concurrency,
		RetryCount:        cfg.Download.RetryCount,
		UserRetryCount:    cfg.Download.UserRetryCount,
		UserDelayMs:       cfg.Download.UserDelayMs,
		PerRequestDelayMs: cfg.Download.PerRequestDelayMs,
		Scraper:           scraper,
	}

	result, err := runAndReport(ctx, jobOpts)
	if err != nil {
		return err
	}

	notifier := ui.NewNotifier()
	if events.HasFinalFailures(result) {
		notifier.SendError("twharvest", fmt.Sprintf("finished with %d user failure(s), %d media failure(s)", result.FailedUsers, result.Failed))
	} else {
		notifier.SendSuccess("twharvest", fmt.Sprintf("downloaded %d item(s) for %d user(s)", result.Downloaded, result.SucceededUsers))
	}

	if dlJSONReport != "" {
		if err := report.WriteJSONFile(dlJSONReport, result); err != nil {
			return errors.Wrap(errors.Internal, err)
		}
	}
	if dlCSVReport != "" {
		if err := report.WriteCSVFile(dlCSVReport, result); err != nil {
			return errors.Wrap(errors.Internal, err)
		}
	}
	if dlFailuresReport != "" {
		if err := report.WriteFailuresJSONFile(dlFailuresReport, result); err != nil {
			return errors.Wrap(errors.Internal, err)
		}
	}

	if events.HasFinalFailures(result) {
		return errors.New(errors.Partial, fmt.Sprintf("%d user failure(s), %d media failure(s)", result.FailedUsers, result.Failed))
	}
	return nil
}

// runAndReport drains a batch job's event channel, printing one
// status line per event, and returns the final JobResult.
func runAndReport(ctx context.Context, opts harvest.JobOptions) (*events.JobResult, error) {
	ch := harvest.RunBatchJob(ctx, opts)
	var result *events.JobResult
	for msg := range ch {
		if msg.Event != nil {
			printJobEvent(msg.Event)
		}
		if msg.Result != nil {
			result = msg.Result
		}
	}
	if result == nil {
		return nil, errors.New(errors.Internal, "batch job ended without a result")
	}
	return result, nil
}

func printJobEvent(ev *events.JobEvent) {
	switch ev.Type {
	case events.ErrorEvent:
		ui.PrintError(ev.Message)
	case events.Warning:
		ui.PrintWarning(ev.Message)
	case events.JobFinished:
		ui.PrintHighlight(ev.Message)
	default:
		ui.PrintInfo(string(ev.Type), ev.Message)
	}
}

func resolveUsers(inline, path string) ([]string, error) {
	if inline == "" && path == "" {
		return nil, fmt.Errorf("one of --users or --users-file is required")
	}
	if inline != "" && path != "" {
		return nil, fmt.Errorf("--users and --users-file are mutually exclusive")
	}
	if inline != "" {
		var out []string
		for _, u := range strings.Split(inline, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				out = append(out, u)
			}
		}
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return out, nil
}

func parseKinds(s string) ([]events.MediaKind, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var kinds []events.MediaKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		switch events.MediaKind(part) {
		case events.KindImage, events.KindVideo, events.KindGif:
			kinds = append(kinds, events.MediaKind(part))
		default:
			return nil, fmt.Errorf("unknown media kind %q (want image, video, or gif)", part)
		}
	}
	return kinds, nil
}

func init() {
	downloadCmd.Flags().StringVar(&dlUsers, "users", "", "comma-separated list of handles")
	downloadCmd.Flags().StringVar(&dlUsersFile, "users-file", "", "path to a newline-delimited file of handles")
	downloadCmd.Flags().StringVar(&dlOut, "out", "", "output directory (required)")
	downloadCmd.Flags().StringVar(&dlKinds, "kinds", "", "comma-separated media kinds to keep: image,video,gif (default: all)")
	downloadCmd.Flags().IntVar(&dlMaxTweets, "max-tweets", 0, "maximum tweets to inspect per user (0 = unlimited)")
	downloadCmd.Flags().IntVar(&dlConcurrency, "concurrency", 0, "concurrent downloads (default from config)")
	downloadCmd.Flags().IntVar(&dlRetry, "retry", 0, "per-media retry count (default from config)")
	downloadCmd.Flags().IntVar(&dlUserRetry, "user-retry", 0, "per-user retry count (default from config)")
	downloadCmd.Flags().IntVar(&dlUserDelayMs, "user-delay-ms", 0, "delay between users in milliseconds")
	downloadCmd.Flags().IntVar(&dlRequestDelayMs, "request-delay-ms", 0, "delay between media fetch attempts in milliseconds")
	downloadCmd.Flags().StringVar(&dlEngine, "engine", "", "scraper engine: graphql or playwright (default from config)")
	downloadCmd.Flags().StringVar(&dlJSONReport, "json-report", "", "write a JSON report to this path")
	downloadCmd.Flags().StringVar(&dlCSVReport, "csv-report", "", "write a CSV report to this path")
	downloadCmd.Flags().StringVar(&dlFailuresReport, "failures-report", "", "write just the failure details as JSON to this path")
	rootCmd.AddCommand(downloadCmd)
}
