package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/setting"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage durable queue settings",
		Long: `Settings live in the store alongside the jobs, so every worker sees
the same values regardless of which machine or process it runs in.
Known keys: ` + strings.Join(setting.KnownKeys, ", ") + `.`,
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigListCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			e, s, err := buildEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			value, err := e.Setting(cmd.Context(), args[0])
			if errors.Is(err, forq.ErrSettingNotFound) {
				if def, ok := defaultSetting(args[0]); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (default)\n", def)
					return nil
				}
				return err
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting value",
		Example: `  forq config set backoff_base 3
  forq config set default_max_retries 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			e, s, err := buildEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := e.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print all settings, including defaults for unset known keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			e, s, err := buildEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			stored, err := e.Settings(cmd.Context())
			if err != nil {
				return err
			}

			rows := map[string]string{}
			for _, key := range setting.KnownKeys {
				def, _ := defaultSetting(key)
				rows[key] = def + " (default)"
			}
			for key, value := range stored {
				rows[key] = value
			}

			keys := make([]string, 0, len(rows))
			for key := range rows {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, key := range keys {
				fmt.Fprintf(w, "%s\t%s\n", key, rows[key])
			}
			return w.Flush()
		},
	}
}

func defaultSetting(key string) (string, bool) {
	switch key {
	case setting.KeyBackoffBase:
		return fmt.Sprintf("%g", setting.DefaultBackoffBase), true
	case setting.KeyDefaultMaxRetries:
		return fmt.Sprintf("%d", setting.DefaultMaxRetries), true
	default:
		return "", false
	}
}
