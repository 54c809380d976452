package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and environment overrides, and
report every validation error at once.

Examples:
  # Validate the default config file
  admission validate

  # Validate a specific file and print the effective policies as JSON
  admission validate --config /etc/admission/admission.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// policySummary describes one effective policy.
type policySummary struct {
	Name        string `json:"name"`
	Algorithm   string `json:"algorithm"`
	Window      string `json:"window,omitempty"`
	MaxRequests int    `json:"max_requests,omitempty"`
	MinInterval string `json:"min_interval,omitempty"`
	KeySource   string `json:"key_source"`
	KeyName     string `json:"key_name,omitempty"`
}

// configSummary is the output of the validate command.
type configSummary struct {
	Path          string          `json:"path"`
	ListenAddress string          `json:"listen_address"`
	Journal       string          `json:"journal"`
	Policies      []policySummary `json:"policies"`
}

func (s configSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Configuration valid: %s\n", s.Path)
	fmt.Fprintf(&b, "  Listen address: %s\n", s.ListenAddress)
	fmt.Fprintf(&b, "  Journal: %s\n", s.Journal)
	fmt.Fprintf(&b, "  Policies (%d):\n", len(s.Policies))
	for _, p := range s.Policies {
		switch p.Algorithm {
		case "sliding_window":
			fmt.Fprintf(&b, "    - %s: %d per %s", p.Name, p.MaxRequests, p.Window)
		default:
			fmt.Fprintf(&b, "    - %s: one per %s", p.Name, p.MinInterval)
		}
		if p.KeyName != "" {
			fmt.Fprintf(&b, " keyed by %s %s\n", p.KeySource, p.KeyName)
		} else {
			fmt.Fprintf(&b, " keyed by %s\n", p.KeySource)
		}
	}
	return b.String()
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summarize(cfgFile, cfg))
}

func summarize(path string, cfg *config.Config) configSummary {
	summary := configSummary{
		Path:          path,
		ListenAddress: cfg.Server.ListenAddress,
		Journal:       "disabled",
		Policies:      make([]policySummary, 0, len(cfg.Policies)),
	}
	if cfg.Journal.Enabled {
		summary.Journal = cfg.Journal.Backend
	}

	names := make([]string, 0, len(cfg.Policies))
	for name := range cfg.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := cfg.Policies[name]
		ps := policySummary{
			Name:      name,
			Algorithm: p.Algorithm,
			KeySource: p.KeySource,
			KeyName:   p.KeyName,
		}
		if p.Algorithm == "sliding_window" {
			ps.Window = p.Window.String()
			ps.MaxRequests = p.MaxRequests
		} else {
			ps.MinInterval = p.MinInterval.String()
		}
		summary.Policies = append(summary.Policies, ps)
	}

	return summary
}
