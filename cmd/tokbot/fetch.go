package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwygoda/tokbot/internal/adapter/filesink"
	"github.com/cwygoda/tokbot/internal/config"
	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

var (
	flagOutput    string
	flagProviders []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a TikTok link to a local directory",
	Long: `Fetch runs the same provider chain and media selection as the bot,
but writes the result to disk instead of a chat. Nothing is recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: fetchRun,
}

func init() {
	fetchCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output directory (default from config, else current directory)")
	fetchCmd.Flags().StringSliceVarP(&flagProviders, "providers", "p", nil, "Providers to try, in order")
}

func fetchRun(cmd *cobra.Command, args []string) error {
	src, err := domain.ExtractSourceURL(args[0])
	if err != nil {
		return fmt.Errorf("%q: %w", args[0], err)
	}
	if len(flagProviders) > 0 {
		cfg.Providers = flagProviders
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	dir := cfg.OutputDir
	if flagOutput != "" {
		dir = flagOutput
	}
	sink := filesink.New(config.ExpandPath(dir))

	extractor, err := newExtractor(cfg, httputil.NewClient(), sink, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	rep := extractor.Extract(ctx, src, domain.Target{SourceURL: src})
	if !rep.Outcome.Success {
		for _, att := range rep.Attempts {
			appLogger.Debug("attempt", "provider", att.Provider, "candidates", att.Candidates, "fetched", att.Fetched, "error", att.Err)
		}
		return rep.Err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s via %s (%d item(s), %d bytes)\n",
		rep.Outcome.Kind, rep.Provider, rep.Outcome.ItemsDelivered, rep.Outcome.TotalBytes)
	for _, p := range sink.Written() {
		fmt.Fprintln(out, p)
	}
	return nil
}
