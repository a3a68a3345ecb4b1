package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/pytestify/internal/convert"
	"github.com/QTest-hq/pytestify/internal/transform"
)

func fallbackCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "fallback <file>",
		Short: "Rewrite setUp/tearDown with the line-based transformer",
		Long: `Rewrite setUp/tearDown into an autouse setup_method fixture without
parsing the file. Use it for sources the parser rejects; it does not
understand nesting and rewrites nothing else.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			res := convert.NewConverter(transform.DefaultOptions()).ConvertFallback(file, string(content))
			if !write {
				fmt.Fprint(cmd.OutOrStdout(), res.Output)
				return nil
			}
			if !res.Changed {
				log.Info().Str("file", file).Msg("no setUp/tearDown found")
				return nil
			}
			if err := os.WriteFile(file, []byte(res.Output), 0644); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			log.Info().Str("file", file).Msg("rewrote fixtures")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "Rewrite the file instead of printing")

	return cmd
}
