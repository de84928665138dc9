package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"consensussim/experiment"
	"consensussim/interfaces"
	"consensussim/util/file"
	"consensussim/util/logger"
	"consensussim/util/validation"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	logLevel    string
	outPath     string
	parallelism int
	seed        uint64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "consensussim",
		Short:         "discrete event simulator for blockchain and BFT consensus protocols",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yml", "application config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log verbosity, overrides the config file")
	flags.StringVarP(&opts.outPath, "out", "o", "", "output directory, overrides the config file")
	flags.IntVarP(&opts.parallelism, "parallelism", "p", -1, "concurrent runs, 0 uses every CPU")
	flags.Uint64Var(&opts.seed, "seed", 0, "first seed, overrides the config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run <experiment>",
			Short: "run a named experiment sweep",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDriver(cmd, opts, func(ctx context.Context, driver *experiment.Driver, library *file.Library) error {
					experimentConfig, err := library.Experiment(args[0])
					if err != nil {
						return eris.Wrap(interfaces.ErrConfig, err.Error())
					}
					results, err := driver.Run(ctx, args[0], experimentConfig)
					report(cmd, results)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "scenario <name>",
			Short: "run a built-in or library test or experiment by name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDriver(cmd, opts, func(ctx context.Context, driver *experiment.Driver, _ *file.Library) error {
					results, err := driver.RunNamedScenario(ctx, args[0])
					report(cmd, results)
					if err == nil && results != nil && !results.Passed() {
						return eris.Errorf("scenario %v did not pass", args[0])
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "test [name...]",
			Short: "run regression tests, all of them without arguments",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDriver(cmd, opts, func(ctx context.Context, driver *experiment.Driver, library *file.Library) error {
					names := args
					if len(names) == 0 {
						names = library.TestNames()
					}
					failed := make([]string, 0)
					for _, name := range names {
						test, err := library.Test(name)
						if err != nil {
							return eris.Wrap(interfaces.ErrConfig, err.Error())
						}
						results, err := driver.RunTest(ctx, name, test)
						report(cmd, results)
						if err != nil {
							return err
						}
						if !results.Passed() {
							failed = append(failed, name)
						}
					}
					if len(failed) > 0 {
						return eris.Errorf("failed tests: %v", strings.Join(failed, ", "))
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "list the protocols, networks, experiments and tests of the library",
			RunE: func(cmd *cobra.Command, _ []string) error {
				config, err := loadConfig(opts)
				if err != nil {
					return err
				}
				library, err := loadLibrary(config)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "protocols:   %v\n", strings.Join(library.ProtocolNames(), " "))
				fmt.Fprintf(out, "networks:    %v\n", strings.Join(library.NetworkNames(), " "))
				fmt.Fprintf(out, "experiments: %v\n", strings.Join(library.ExperimentNames(), " "))
				fmt.Fprintf(out, "tests:       %v\n", strings.Join(library.TestNames(), " "))
				fmt.Fprintf(out, "parameters:  %v\n", strings.Join(file.ParameterNames(), " "))
				return nil
			},
		},
	)
	return rootCmd
}

func loadConfig(opts *options) (*file.Config, error) {
	config, err := file.LoadConfig(opts.configPath)
	if err != nil {
		return nil, eris.Wrap(interfaces.ErrConfig, err.Error())
	}
	if opts.logLevel != "" {
		config.CLogLevel = opts.logLevel
	}
	if opts.outPath != "" {
		config.COutPath = opts.outPath
	}
	if opts.parallelism >= 0 {
		config.CParallelism = opts.parallelism
	}
	if opts.seed != 0 {
		config.CSeed = opts.seed
	}
	if err := validation.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadLibrary(config *file.Config) (*file.Library, error) {
	if config.LibraryPath() == "" {
		return file.Builtin(), nil
	}
	library, err := file.LoadLibrary(config.LibraryPath())
	if err != nil {
		return nil, eris.Wrap(interfaces.ErrConfig, err.Error())
	}
	return library, nil
}

// withDriver sets up config, logging and interrupt handling around fn.
func withDriver(cmd *cobra.Command, opts *options, fn func(context.Context, *experiment.Driver, *file.Library) error) error {
	config, err := loadConfig(opts)
	if err != nil {
		return err
	}
	library, err := loadLibrary(config)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(config.LogLevel())
	if err != nil {
		return eris.Wrap(interfaces.ErrConfig, err.Error())
	}
	logFile, err := file.CreateOutFile(config.OutPath(), "sim.log")
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := logger.New(logFile, config.PrintLogToConsole(), level)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = fn(ctx, experiment.NewDriver(config, library, log), library)
	if eris.Is(err, interfaces.ErrInterrupted) {
		log.Warn().Err(err).Msg("sim interrupted")
		return nil
	}
	if err != nil {
		log.Error().Str("error", eris.ToString(err, false)).Msg("sim failed")
	}
	return err
}

func report(cmd *cobra.Command, results *experiment.ResultSet) {
	if results == nil {
		return
	}
	out := cmd.OutOrStdout()
	for _, r := range results.Results() {
		switch {
		case r.Failed():
			fmt.Fprintf(out, "%v: ERROR %v\n", r.Key, r.Error)
		case len(r.Assertions) == 0:
			fmt.Fprintf(out, "%v: %v\n", r.Key, formatMetrics(results.Metrics, r))
		default:
			for _, a := range r.Assertions {
				fmt.Fprintf(out, "%v: %v\n", r.Key, a)
			}
		}
	}
	for _, c := range results.PointChecks() {
		for _, a := range c.Assertions {
			fmt.Fprintf(out, "%v (mean of %d runs): %v\n", c.Key, c.Runs-c.Failed, a)
		}
	}
}

func formatMetrics(names []string, r *experiment.Result) string {
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%v=%.4g", name, r.Metrics[name])
	}
	return strings.Join(parts, " ")
}
