package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

// rawConfigCmd runs fn with the parsed dotted key and the raw config map.
func rawConfigCmd(use, short string, nargs int, fn func(cmd *cobra.Command, key []string, raw map[string]any, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:         use,
		Short:       short,
		Args:        cobra.ExactArgs(nargs),
		Annotations: map[string]string{annotationRawConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			return fn(cmd, key, raw, args)
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return rawConfigCmd("get <key>", "Print a value, e.g. gateway.port", 1,
		func(cmd *cobra.Command, key []string, raw map[string]any, args []string) error {
			val, ok := config.GetValueAtPath(raw, key)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}
			return printValue(cmd.OutOrStdout(), val)
		})
}

func newConfigSetCmd() *cobra.Command {
	return rawConfigCmd("set <key> <value>", "Set a value; true/false and numbers are typed", 2,
		func(cmd *cobra.Command, key []string, raw map[string]any, args []string) error {
			value := parseValue(args[1])
			config.SetValueAtPath(raw, key, value)
			if err := saveRaw(raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
			return nil
		})
}

func newConfigUnsetCmd() *cobra.Command {
	return rawConfigCmd("unset <key>", "Remove a value", 1,
		func(cmd *cobra.Command, key []string, raw map[string]any, args []string) error {
			if !config.UnsetValueAtPath(raw, key) {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err := saveRaw(raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
			return nil
		})
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the config file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationRawConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func saveRaw(raw map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(paths.Config), 0o700); err != nil {
		return err
	}
	return config.SaveRaw(paths.Config, raw)
}

// printValue writes scalars on one line and maps or lists as YAML.
func printValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, val)
		return err
	}
}

// parseValue interprets a command-line value as a bool, int, float or string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, "0123456789") {
		return f
	}
	return s
}
