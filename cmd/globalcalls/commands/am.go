package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/globalcalls/am"
	"github.com/teranos/globalcalls/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show and validate globalcalls configuration",
	Long: `am - Show and validate globalcalls configuration

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/globalcalls/am.toml)
3. User config (~/.globalcalls/am.toml)
4. Project config (./am.toml, searched up directories)
5. Environment variables (GLOBALCALLS_* prefix)

Examples:
  globalcalls am show                    # Show current configuration
  globalcalls am show --format json      # Show configuration in JSON format
  globalcalls am where                   # Show where each setting comes from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// LoadConfig validates
		if _, err := LoadConfig(cmd); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
		return nil
	},
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting is loaded from",
	RunE: func(cmd *cobra.Command, args []string) error {
		printSources(cmd.OutOrStdout(), am.ConfigPaths(), am.Introspect(am.GetViper()))
		return nil
	},
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := renderConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// renderConfig marshals cfg in the requested format. The database DSN is
// excluded from every format.
func renderConfig(cfg *am.Config, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return append([]byte("# globalcalls configuration\n"), data...), nil

	case "toml":
		redacted := *cfg
		redacted.Database.DSN = ""
		data, err := toml.Marshal(redacted)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return append([]byte("# globalcalls configuration\n"), data...), nil

	default:
		return nil, errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func printSources(w io.Writer, paths []string, settings []am.SettingInfo) {
	fmt.Fprintln(w, "Configuration files checked (later overrides earlier):")
	for _, p := range paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Effective settings:")
	for _, s := range settings {
		value := fmt.Sprintf("%v", s.Value)
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		fmt.Fprintf(w, "  %-28s = %-20s [%s] %s\n", s.Key, value, s.Source, s.SourcePath)
	}
}
