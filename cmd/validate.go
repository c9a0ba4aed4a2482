package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/belulok/quest-chain/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate the configuration given by --config without starting the server.

Environment overrides (QUESTCHAIN_*) are applied exactly as the daemon would.

Examples:
  questchain validate -c /etc/questchain/config.yml
  questchain validate -c config.yml --print`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		if err := printValidation(cmd.OutOrStdout(), cfg, validatePrint); err != nil {
			exitWithError("failed to print configuration", err)
		}
	},
}

var validatePrint bool

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false,
		"print the effective configuration as YAML")
}

func printValidation(out io.Writer, cfg *config.GlobalConfig, effective bool) error {
	fmt.Fprintf(out, "VALID: listen %s, max hp %d, rate limit %s, persistence %s\n",
		cfg.Server.Listen,
		cfg.Raid.MaxHP,
		rateLimitSummary(cfg.RateLimit),
		cfg.Persistence.Backend,
	)
	if !effective {
		return nil
	}

	data, err := yaml.Marshal(map[string]*config.GlobalConfig{"questchain": cfg})
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func rateLimitSummary(rl config.RateLimitConfig) string {
	if !rl.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%d/%s (%s)", rl.Threshold, rl.Window, rl.Backend)
}
