package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/candelahq/trellis/config"
	"github.com/candelahq/trellis/errors"
)

// ConfigCmd manages the trellis configuration file
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
	Long: `Show the effective configuration or write a starter config file.

Configuration is read from ./trellis.toml (searched upward from the
working directory), then the user config directory, then TRELLIS_
environment variables. Values not set anywhere fall back to defaults.

Examples:
  trellis config show            # Print the effective configuration
  trellis config init            # Write the default config file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current defaults",
	RunE:  runConfigInit,
}

var (
	configShowFormat string
	configInitForce  bool
)

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "toml", "Output format: toml or yaml")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	raw, err := marshalAs(cfg, configShowFormat)
	if err != nil {
		return err
	}
	fmt.Print(string(raw))
	return nil
}

// marshalAs renders a document in the requested CLI output format
func marshalAs(v interface{}, format string) ([]byte, error) {
	switch format {
	case "toml":
		raw, err := toml.Marshal(v)
		return raw, errors.Wrap(err, "failed to render TOML")
	case "yaml":
		raw, err := yaml.Marshal(v)
		return raw, errors.Wrap(err, "failed to render YAML")
	default:
		return nil, errors.NewInvalidRequestError("unknown format %q (expected toml or yaml)", format)
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return errors.Newf("config file %s already exists (use --force to overwrite)", path)
	}

	// Defaults plus environment; the file being written is not read.
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}
