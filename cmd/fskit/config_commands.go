package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/fskit/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	opts *globalOptions
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	c := &configCommand{opts: opts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management (show, path, init)",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runShow(cmd.OutOrStdout(), format)
		},
	}
	show.Flags().StringVar(&format, "format", "yaml", "output format (yaml, json)")

	path := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file search paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runPath(cmd.OutOrStdout())
		},
	}

	var (
		force  bool
		output string
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runInit(cmd.OutOrStdout(), output, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	initCmd.Flags().StringVar(&output, "output", "", "output path (default ~/.config/fskit/config.yaml)")

	cmd.AddCommand(show, path, initCmd)
	return cmd
}

// runShow displays the current configuration.
func (c *configCommand) runShow(out io.Writer, format string) error {
	cfg, err := c.opts.loadConfig()
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintf(out, "# Source: %s\n%s", c.source(), data)
		return err

	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

// runPath shows where configuration is looked up.
func (c *configCommand) runPath(out io.Writer) error {
	paths := []string{"./fskit.yaml", config.DefaultConfigPath()}

	fmt.Fprintln(out, "Configuration file search paths (in order of precedence):")
	fmt.Fprintln(out)
	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Fprintf(out, "  %d. %s [%s]\n", i+1, p, exists)
	}
	fmt.Fprintln(out)

	_, err := fmt.Fprintln(out, "Active configuration:", c.source())
	return err
}

// runInit writes the default configuration.
func (c *configCommand) runInit(out io.Writer, output string, force bool) error {
	if output == "" {
		output = config.DefaultConfigPath()
	}

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", output)
	}

	if err := config.Save(config.Default(), output); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "Configuration written to %s\n", output)
	return err
}

// source returns the path of the active configuration file.
func (c *configCommand) source() string {
	if p := config.NewLoader(c.opts.configPath).Path(); p != "" {
		return p
	}
	return "defaults (no config file found)"
}
