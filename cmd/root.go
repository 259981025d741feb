package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SoboLAN/queue-manager/sim"
)

var (
	// CLI flags for the simulation parameters
	nrQueues       int    // Number of queues at the facility
	capacity       int    // Maximum customers one queue can hold
	nrCustomers    int    // Total customers for which to simulate
	minArrival     int    // Minimum seconds between customer arrivals
	maxArrival     int    // Maximum seconds between customer arrivals
	minService     int    // Minimum service need of a customer (seconds)
	maxService     int    // Maximum service need of a customer (seconds)
	reorganization int    // Reorganization period in seconds (0 disables)
	seed           int64  // Seed for arrival offsets and service needs
	scenarioPath   string // Optional YAML scenario file
	logLevel       string // Log verbosity level
	logFilePath    string // Run log destination ("" = dated default name)
	quiet          bool   // Suppress per-event console output
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "queue-manager",
	Short: "Discrete-event simulator for a multi-queue service facility",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the queue simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		builder := sim.NewBuilder().
			Queues(nrQueues).
			Capacity(capacity).
			Customers(nrCustomers).
			ArrivalInterval(minArrival, maxArrival).
			ServiceInterval(minService, maxService).
			Reorganization(reorganization).
			Seed(seed)

		// A scenario file overrides the flag values for whatever it sets.
		if scenarioPath != "" {
			scenario, err := sim.LoadScenario(scenarioPath)
			if err != nil {
				return err
			}
			if err := scenario.Validate(); err != nil {
				return fmt.Errorf("scenario %s: %w", scenarioPath, err)
			}
			scenario.Apply(builder)
		}

		simulator, err := builder.Build()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logWriter, err := NewLogWriter(logFilePath, simulator.Config())
		if err != nil {
			return fmt.Errorf("creating run log: %w", err)
		}
		defer logWriter.Close()

		// Terminal messages land here; capacity covers the worst case of a
		// terminal message per subscriber callback in flight.
		done := make(chan sim.Message, 1)

		simulator.Subscribe(func(m sim.Message) {
			if !quiet {
				fmt.Println(Render(m))
			}
			logWriter.Record(m)
			switch m {
			case sim.MsgFinished, sim.MsgStopped, sim.MsgErrored:
				select {
				case done <- m:
				default:
				}
			}
		})

		g, ctx := errgroup.WithContext(context.Background())
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		g.Go(func() error {
			// Either an interrupt or the run ended; Stop is a no-op in the
			// latter case.
			<-sigCtx.Done()
			simulator.Stop()
			return nil
		})

		g.Go(func() error {
			defer stop()
			final := <-done
			logWriter.WriteStatistics(simulator)
			if final == sim.MsgErrored {
				return fmt.Errorf("simulation failed: %w", simulator.Err())
			}
			logrus.Infof("simulation ended after %d seconds", simulator.ElapsedSeconds())
			return nil
		})

		if err := simulator.Simulate(); err != nil {
			stop()
			return err
		}

		return g.Wait()
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().IntVar(&nrQueues, "queues", sim.DefaultQueues, "Number of queues (1-10)")
	runCmd.Flags().IntVar(&capacity, "capacity", sim.DefaultCapacity, "Maximum customers per queue (1-10)")
	runCmd.Flags().IntVar(&nrCustomers, "customers", sim.DefaultCustomers, "Total number of customers to simulate")
	runCmd.Flags().IntVar(&minArrival, "min-arrival", sim.DefaultMinArrival, "Minimum seconds between arrivals")
	runCmd.Flags().IntVar(&maxArrival, "max-arrival", sim.DefaultMaxArrival, "Maximum seconds between arrivals")
	runCmd.Flags().IntVar(&minService, "min-service", sim.DefaultMinService, "Minimum service need in seconds")
	runCmd.Flags().IntVar(&maxService, "max-service", sim.DefaultMaxService, "Maximum service need in seconds")
	runCmd.Flags().IntVar(&reorganization, "reorganization", sim.DefaultReorganization, "Reorganization period in seconds (0 or negative disables)")
	runCmd.Flags().Int64Var(&seed, "seed", sim.DefaultSeed, "Seed for random arrival offsets and service needs")
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file (overrides flags)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&logFilePath, "log-file", "", "Run log path (default simulator.<date>.log)")
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress per-event console output")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
