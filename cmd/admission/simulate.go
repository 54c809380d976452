package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/limits/ratelimit"
)

var simulateFlags struct {
	algorithm   string
	window      time.Duration
	maxRequests int
	interval    time.Duration
	messages    int
	users       int
	pause       time.Duration
	jitterMin   time.Duration
	jitterMax   time.Duration
	seed        uint64
	fast        bool
	output      string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a message flow against a limiter",
	Long: `Send two rounds of messages from a handful of users through a limiter and
print, for every message, whether it was admitted or how long the user has to
wait. The rounds are separated by a pause and messages by a random delay.

By default the simulation sleeps in real time. With --fast a manual clock is
advanced instead, which together with --seed makes the run reproducible.

Examples:
  # One message per user per 10 seconds
  admission simulate --algorithm sliding_window --window 10s --max-requests 1

  # At least 10 seconds between messages of the same user
  admission simulate --algorithm cooldown --interval 10s --pause 10s

  # Reproducible run as JSON
  admission simulate --fast --seed 42 --output json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.StringVar(&simulateFlags.algorithm, "algorithm", string(ratelimit.AlgorithmSlidingWindow), "limiter: sliding_window, cooldown")
	f.DurationVar(&simulateFlags.window, "window", 10*time.Second, "sliding window size")
	f.IntVar(&simulateFlags.maxRequests, "max-requests", 1, "messages admitted per window")
	f.DurationVar(&simulateFlags.interval, "interval", 10*time.Second, "cooldown between messages of one user")
	f.IntVar(&simulateFlags.messages, "messages", 10, "messages per round")
	f.IntVar(&simulateFlags.users, "users", 5, "number of users")
	f.DurationVar(&simulateFlags.pause, "pause", 4*time.Second, "pause between the two rounds")
	f.DurationVar(&simulateFlags.jitterMin, "jitter-min", 100*time.Millisecond, "minimum delay between messages")
	f.DurationVar(&simulateFlags.jitterMax, "jitter-max", time.Second, "maximum delay between messages")
	f.Uint64Var(&simulateFlags.seed, "seed", 0, "random seed (0 picks one)")
	f.BoolVar(&simulateFlags.fast, "fast", false, "advance a manual clock instead of sleeping")
	f.StringVarP(&simulateFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// simulationRow is the outcome of one simulated message.
type simulationRow struct {
	Round       int     `json:"round"`
	Message     int     `json:"message"`
	User        string  `json:"user"`
	Allowed     bool    `json:"allowed"`
	WaitSeconds float64 `json:"wait_seconds"`
}

func (r simulationRow) String() string {
	mark := "✓"
	if !r.Allowed {
		mark = fmt.Sprintf("× (wait %.1fs)", r.WaitSeconds)
	}
	return fmt.Sprintf("Message %2d | User %s | %s", r.Message, r.User, mark)
}

// simulationResult is the full run. It renders as text, JSON or CSV.
type simulationResult struct {
	Algorithm string          `json:"algorithm"`
	Seed      uint64          `json:"seed"`
	Pause     string          `json:"pause"`
	Messages  []simulationRow `json:"messages"`
}

// Admitted returns the number of admitted messages.
func (r *simulationResult) Admitted() int {
	n := 0
	for _, row := range r.Messages {
		if row.Allowed {
			n++
		}
	}
	return n
}

func (r *simulationResult) Header() []string {
	return []string{"round", "message", "user", "allowed", "wait_seconds"}
}

func (r *simulationResult) Rows() [][]string {
	rows := make([][]string, 0, len(r.Messages))
	for _, row := range r.Messages {
		rows = append(rows, []string{
			strconv.Itoa(row.Round),
			strconv.Itoa(row.Message),
			row.User,
			strconv.FormatBool(row.Allowed),
			strconv.FormatFloat(row.WaitSeconds, 'f', 1, 64),
		})
	}
	return rows
}

// simulator drives messages through a limiter.
type simulator struct {
	limiter   ratelimit.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
	rng       *rand.Rand
	algorithm ratelimit.Algorithm
	seed      uint64
	messages  int
	users     int
	pause     time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
}

// run sends two rounds of messages. When live is non-nil, text output is
// written to it as the simulation progresses.
func (s *simulator) run(ctx context.Context, live io.Writer) (*simulationResult, error) {
	result := &simulationResult{
		Algorithm: string(s.algorithm),
		Seed:      s.seed,
		Pause:     s.pause.String(),
		Messages:  make([]simulationRow, 0, 2*s.messages),
	}
	printf := func(format string, args ...any) {
		if live != nil {
			fmt.Fprintf(live, format, args...)
		}
	}

	printf("\n=== Simulating Message Flow (%s) ===\n", s.algorithm)
	if err := s.round(ctx, 1, 1, result, printf); err != nil {
		return result, err
	}

	printf("\nWaiting %s...\n", s.pause)
	if err := s.sleep(ctx, s.pause); err != nil {
		return result, err
	}

	printf("\n=== New Messages After Waiting ===\n")
	if err := s.round(ctx, 2, s.messages+1, result, printf); err != nil {
		return result, err
	}

	return result, nil
}

func (s *simulator) round(ctx context.Context, round, first int, result *simulationResult, printf func(string, ...any)) error {
	for id := first; id < first+s.messages; id++ {
		user := strconv.Itoa(id%s.users + 1)

		row := simulationRow{
			Round:   round,
			Message: id,
			User:    user,
			Allowed: s.limiter.Record(user),
		}
		row.WaitSeconds = s.limiter.TimeUntilNextAllowed(user).Seconds()

		result.Messages = append(result.Messages, row)
		printf("%s\n", row)

		if err := s.sleep(ctx, s.jitter()); err != nil {
			return err
		}
	}
	return nil
}

// jitter returns a uniform random delay in [jitterMin, jitterMax].
func (s *simulator) jitter() time.Duration {
	if s.jitterMax <= s.jitterMin {
		return s.jitterMin
	}
	return s.jitterMin + time.Duration(s.rng.Int64N(int64(s.jitterMax-s.jitterMin)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newSimulator builds a simulator from the command flags.
func newSimulator() (*simulator, error) {
	if simulateFlags.messages <= 0 {
		return nil, fmt.Errorf("--messages must be positive, got %d", simulateFlags.messages)
	}
	if simulateFlags.users <= 0 {
		return nil, fmt.Errorf("--users must be positive, got %d", simulateFlags.users)
	}
	if simulateFlags.pause < 0 || simulateFlags.jitterMin < 0 || simulateFlags.jitterMax < 0 {
		return nil, fmt.Errorf("--pause and --jitter-* cannot be negative")
	}

	var clock ratelimit.Clock
	sleep := sleepContext
	if simulateFlags.fast {
		manual := ratelimit.NewManualClock(0)
		clock = manual
		sleep = func(ctx context.Context, d time.Duration) error {
			manual.Advance(d)
			return ctx.Err()
		}
	} else {
		clock = ratelimit.NewMonotonicClock()
	}

	algorithm := ratelimit.Algorithm(strings.ToLower(simulateFlags.algorithm))
	limiter, err := ratelimit.New(ratelimit.Config{
		Algorithm:   algorithm,
		Window:      simulateFlags.window,
		MaxRequests: simulateFlags.maxRequests,
		MinInterval: simulateFlags.interval,
	}, ratelimit.WithClock(clock))
	if err != nil {
		return nil, err
	}

	seed := simulateFlags.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &simulator{
		limiter:   limiter,
		sleep:     sleep,
		rng:       rand.New(rand.NewPCG(seed, seed)),
		algorithm: algorithm,
		seed:      seed,
		messages:  simulateFlags.messages,
		users:     simulateFlags.users,
		pause:     simulateFlags.pause,
		jitterMin: simulateFlags.jitterMin,
		jitterMax: simulateFlags.jitterMax,
	}, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(simulateFlags.output)
	if err != nil {
		return err
	}

	sim, err := newSimulator()
	if err != nil {
		return cli.NewConfigError("", err)
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	var live io.Writer
	if format == cli.FormatText {
		live = out
	}

	result, err := sim.run(ctx, live)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}

	if format == cli.FormatText {
		fmt.Fprintf(out, "\n%d of %d messages admitted\n", result.Admitted(), len(result.Messages))
		return nil
	}
	return cli.NewFormatter(format).FormatTo(out, result)
}
