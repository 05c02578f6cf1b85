package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/profile"
)

var (
	flagProfile string
	flagJSON    bool
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "vibeectl",
	Short:         "Control a vibee daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagProfile, "profile", "", "profile name (overrides config default)")
	flags.BoolVar(&flagJSON, "json", false, "output in JSON format")
	flags.DurationVar(&flagTimeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(
		statusCmd(), loginCmd(), registerCmd(), verifyCmd(), resendOTPCmd(), logoutCmd(), profilesCmd(),
		roomsCmd(), joinCmd(), leaveCmd(), sendCmd(), olderCmd(), timelineCmd(), watchCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// resolveProfile picks and validates the profile for this invocation.
func resolveProfile() (string, error) {
	return profile.Select(flagProfile)
}

// withClient dials the profile's daemon and runs fn with a bounded context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) error) error {
	name, err := resolveProfile()
	if err != nil {
		return err
	}
	c, err := api.Dial(profile.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
