package commands

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage evalanche configuration",
	Long: sym.AM + ` am — Manage evalanche configuration

Configuration sources (in order of precedence):
1. --config file, when given
2. Environment variables (EVALANCHE_* prefix)
3. Project config (./am.toml, searching up directories)
4. User config (~/.evalanche/am.toml)
5. System config (/etc/evalanche/am.toml)
6. Default values

Examples:
  evalanche am show                    # Show current configuration
  evalanche am show --format yaml      # Show configuration as YAML
  evalanche am get pipeline.batch_size # Get one value
  evalanche am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, pipeline.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	format := configFormat
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}

	data, err := marshalSettings(am.AllSettings(), format)
	if err != nil {
		return err
	}
	if format != "json" {
		fmt.Println("# evalanche configuration")
	}
	fmt.Print(string(data))
	return nil
}

// marshalSettings renders the merged settings as toml, json or yaml, keyed
// the way am.toml is written. The OpenRouter API key is masked.
func marshalSettings(settings map[string]interface{}, format string) ([]byte, error) {
	if or, ok := settings["openrouter"].(map[string]interface{}); ok {
		if key, _ := or["api_key"].(string); key != "" {
			or["api_key"] = "********"
		}
	}

	switch format {
	case "json":
		data, err := display.MarshalJSON(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return data, nil
	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return data, nil
	default:
		return nil, errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q not found", key)
	}

	value := am.Get(key)
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{key: value})
	}
	fmt.Println(value)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	display.Success("Configuration is valid")
	return nil
}
