package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relister/internal/browser"
	"relister/internal/config"
	"relister/internal/files"
	"relister/internal/gmail"
	"relister/internal/ledger"
	"relister/internal/market"
	"relister/internal/schedule"
	"relister/internal/workflow"
)

const logFileName = "relister.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	config.LoadEnvFile()

	root := &cobra.Command{
		Use:           "relister",
		Short:         "Auction listing, shipping and relisting automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		workflowCommand("listing", "Process listing request mails", (*workflow.Runner).RunListing),
		workflowCommand("shipping", "Register shipping slips for paid transactions", (*workflow.Runner).RunShipping),
		workflowCommand("relisting", "Relist items that ended without a sale", (*workflow.Runner).RunRelisting),
		runCommand(),
		verifyAuthCommand(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// app is the wired application: paths, settings, ledger and the workflow
// runner sharing one browser manager.
type app struct {
	paths    config.Paths
	settings config.Settings
	manager  *browser.Manager
	ledger   *ledger.Ledger
	events   *workflow.Events
	runner   *workflow.Runner

	closeLog func()
}

func newApp() (*app, error) {
	base, err := config.DefaultBase()
	if err != nil {
		return nil, err
	}
	paths := config.Paths{Base: base}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	closeLog, err := setupLogging(paths)
	if err != nil {
		return nil, err
	}

	settings, err := config.Load(paths)
	if err != nil {
		closeLog()
		return nil, err
	}
	for _, problem := range settings.Validate() {
		log.Warn().Msg(problem)
	}

	l := ledger.New(paths.LedgerPath())
	startupSweep(l, settings, paths)

	inbox, err := gmail.NewClient(gmail.ClientOpts{
		CredentialsPath: settings.GmailCredentialsPath,
		TokenPath:       settings.GmailTokenPath,
	})
	if err != nil {
		closeLog()
		return nil, err
	}

	manager := browser.NewManager(paths.ProfileDir())
	events := workflow.NewEvents()
	runner := workflow.NewRunner(workflow.WrapManager(manager), inbox, l, paths.ImagesDir(), events)
	runner.SetReplyNotification(settings.EnableReplyNotification)

	return &app{
		paths:    paths,
		settings: settings,
		manager:  manager,
		ledger:   l,
		events:   events,
		runner:   runner,
		closeLog: closeLog,
	}, nil
}

// startupSweep runs the retention and orphan cleanup passes. Both are
// best-effort; a failed sweep never blocks a workflow.
func startupSweep(l *ledger.Ledger, settings config.Settings, paths config.Paths) {
	if removed, err := l.Sweep(settings.LedgerRetentionDays); err != nil {
		log.Warn().Err(err).Msg("ledger sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept expired ledger records")
	}
	if deleted, err := files.SweepOrphans(paths.ImagesDir(), files.OrphanMaxAge); err != nil {
		log.Warn().Err(err).Msg("orphan image sweep failed")
	} else if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("swept orphaned images")
	}
}

// setupLogging mirrors output to stderr and a log file, except under
// systemd where journald already captures stderr.
func setupLogging(paths config.Paths) (func(), error) {
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return func() {}, nil
	}

	logPath := filepath.Join(paths.LogsDir(), logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))
	return func() { logFile.Close() }, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// workflowCommand builds a one-shot command around a single workflow run.
func workflowCommand(name, short string, run func(*workflow.Runner, context.Context) (workflow.Summary, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.closeLog()

			ctx, cancel := signalContext()
			defer cancel()

			summary, runErr := run(a.runner, ctx)
			for _, ev := range a.events.Drain() {
				if ev.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %v\n", ev.Workflow, ev.Message, ev.Err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ev.Workflow, ev.Message)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d processed, %d succeeded, %d skipped, %d failed\n",
				name, summary.Processed, summary.Succeeded, summary.Skipped, summary.Failed)
			return runErr
		},
	}
}

// runCommand starts the daily scheduler and blocks until shutdown or a
// batch-fatal workflow failure.
func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daily schedule (listing, shipping, relisting)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.closeLog()

			ctx, cancel := signalContext()
			defer cancel()

			scheduler := schedule.New(
				schedule.Job{Name: "listing", At: a.settings.Schedule.Listing, Run: discardSummary(a.runner.RunListing)},
				schedule.Job{Name: "shipping", At: a.settings.Schedule.Shipping, Run: discardSummary(a.runner.RunShipping)},
				schedule.Job{Name: "relisting", At: a.settings.Schedule.Relisting, Run: discardSummary(a.runner.RunRelisting)},
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return scheduler.Run(ctx)
			})
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev := <-a.events.C():
						if ev.Err != nil {
							log.Warn().Err(ev.Err).Str("workflow", ev.Workflow).Msg(ev.Message)
						} else {
							log.Info().Str("workflow", ev.Workflow).Msg(ev.Message)
						}
					}
				}
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("shutdown complete")
				return nil
			}
			return err
		},
	}
}

func discardSummary(run func(context.Context) (workflow.Summary, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		summary, err := run(ctx)
		log.Info().
			Int("processed", summary.Processed).
			Int("succeeded", summary.Succeeded).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("scheduled run finished")
		return err
	}
}

// verifyAuthCommand opens the browser against the dedicated profile and
// checks the auction site login, giving the operator a chance to log in
// manually when the session is gone.
func verifyAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-auth",
		Short: "Check the auction site login session, logging in manually if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.closeLog()

			ctx, cancel := signalContext()
			defer cancel()

			if conflict, detail := a.manager.CheckConflict(ctx); conflict {
				return fmt.Errorf("browser profile is in use by another process: %s", detail)
			}
			session, err := a.manager.Acquire(ctx)
			if err != nil {
				return err
			}
			defer a.manager.Release()

			page, err := session.NewPage(ctx)
			if err != nil {
				return err
			}
			defer page.Close()

			loggedIn, err := market.CheckLogin(ctx, page)
			if err != nil {
				return err
			}
			if loggedIn {
				fmt.Fprintln(cmd.OutOrStdout(), "auction site session is valid")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "not logged in; log in using the opened browser window, then press Enter")
			reader := bufio.NewReader(cmd.InOrStdin())
			if _, err := reader.ReadString('\n'); err != nil {
				return err
			}

			loggedIn, err = market.CheckLogin(ctx, page)
			if err != nil {
				return err
			}
			if !loggedIn {
				return fmt.Errorf("still not logged in; the profile has no valid session")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "login session saved to the profile")
			return nil
		},
	}
}
