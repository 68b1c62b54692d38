// Command pinmapctl is an operator tool for the pin map service: one-shot
// reverse geocoding through the production provider chain, and hashing the
// shared deletion secret.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/pinmap-service/internal/adapter/geocode"
	"github.com/couchcryptid/pinmap-service/internal/config"
	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/geocoding"
	"github.com/couchcryptid/pinmap-service/internal/observability"
	"github.com/couchcryptid/pinmap-service/internal/pins"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pinmapctl",
		Short:        "Operator tools for the pin map service",
		SilenceUsage: true,
	}
	root.AddCommand(newResolveCmd(), newProvidersCmd(), newHashPasswordCmd())
	return root
}

type resolveOptions struct {
	asJSON  bool
	verbose bool
	timeout time.Duration
}

type resolveOutput struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Key      string  `json:"key"`
	City     string  `json:"city,omitempty"`
	Country  string  `json:"country,omitempty"`
	Label    string  `json:"label"`
	Resolved bool    `json:"resolved"`
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions
	cmd := &cobra.Command{
		Use:   "resolve <lat> <lon>",
		Short: "Resolve a coordinate to a city and country",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := domain.ParseCoordinate(args[0], args[1])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			level := slog.LevelError
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			// Unregistered: the CLI serves no /metrics.
			metrics := observability.NewMetricsForTesting()

			resolver := newResolver(cfg, metrics, logger)
			defer resolver.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			out := resolveOutput{Lat: coord.Lat, Lon: coord.Lon, Key: string(coord.Key())}
			loc, err := resolver.Resolve(ctx, coord.Lat, coord.Lon)
			st := geocoding.State{Status: geocoding.StatusResolved, Location: loc}
			switch {
			case err == nil:
				out.City, out.Country, out.Resolved = loc.City, loc.Country, true
			case errors.Is(err, domain.ErrAllProvidersExhausted):
				st = geocoding.State{Status: geocoding.StatusFailed, Err: err}
			default:
				return err
			}
			out.Label = geocoding.Label(st)

			return printResolve(cmd.OutOrStdout(), out, opts.asJSON)
		},
	}
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log provider attempts to stderr")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for the lookup")
	return cmd
}

// newResolver builds the production chain without the settle delay, which
// only matters when many lookups start together.
func newResolver(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *geocoding.Resolver {
	chain := geocode.NewChain(defaultProviders(cfg), geocode.ChainConfig{
		Timeout:       cfg.GeocodeTimeout,
		FallbackDelay: cfg.GeocodeFallbackDelay,
	}, metrics, logger)
	return geocoding.NewResolver(chain, geocoding.Config{
		MaxConcurrent: 1,
		RetryMin:      cfg.GeocodeRetryMin,
		RetryMax:      cfg.GeocodeRetryMax,
	}, metrics, logger)
}

func defaultProviders(cfg *config.Config) []geocode.Provider {
	return geocode.DefaultProviders(geocode.ProviderConfig{
		Language:      cfg.GeocodeLanguage,
		LocationIQKey: cfg.LocationIQKey,
		MapboxToken:   cfg.MapboxToken,
	})
}

func printResolve(w io.Writer, out resolveOutput, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprintf(w, "%s\t(%s)\n", out.Label, out.Key)
	return err
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured providers in fallback order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for i, p := range defaultProviders(cfg) {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, p.Name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for DELETE_PASSWORD_HASH",
		Long:  "Hashes the given password, or the first line of stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := pins.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
