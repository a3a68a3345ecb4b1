package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/pytestify/internal/validator"
)

func verifyCmd() *cobra.Command {
	var (
		python  string
		run     bool
		workDir string
	)

	cmd := &cobra.Command{
		Use:   "verify <file>...",
		Short: "Check converted files with pytest",
		Long: `Run pytest --collect-only on converted files to confirm they import and
collect. With --run the tests are executed too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, file := range args {
				dir := workDir
				if dir == "" {
					dir = filepath.Dir(file)
				}
				abs, err := filepath.Abs(file)
				if err != nil {
					return err
				}

				v := validator.NewValidator(dir, python)
				result, err := v.RunPytest(cmd.Context(), abs, !run)
				if err != nil {
					return fmt.Errorf("failed to run pytest on %s: %w", file, err)
				}
				fmt.Fprint(cmd.OutOrStdout(), validator.FormatResult(result))
				if !result.Passed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed verification", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&python, "python", "python3", "Python interpreter with pytest installed")
	cmd.Flags().BoolVar(&run, "run", false, "Execute the tests instead of only collecting them")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Directory to run pytest in (default: the file's directory)")

	return cmd
}
