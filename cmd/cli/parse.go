package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/pytestify/internal/parser"
	"github.com/QTest-hq/pytestify/internal/transform"
	"github.com/QTest-hq/pytestify/pkg/cst"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a Python file and show its outline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parser.NewParser().ParseFile(context.Background(), args[0])
			if err != nil {
				var perr *parser.ParseError
				if errors.As(err, &perr) {
					return fmt.Errorf("%s:%d:%d: %s", args[0], perr.Line, perr.Column, perr.Message)
				}
				return fmt.Errorf("failed to parse file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "File: %s\n", args[0])
			for _, line := range outline(m) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	return cmd
}

// outline lists top-level statements with classes and their methods.
func outline(m *cst.Module) []string {
	var lines []string
	for _, s := range m.Body {
		switch n := s.(type) {
		case *cst.ClassDef:
			note := ""
			if transform.IsTestCaseClass(n) {
				note = " [TestCase]"
			}
			lines = append(lines, fmt.Sprintf("class %s%s", n.Name, note))
			for _, inner := range n.Body.Stmts {
				if fn, ok := inner.(*cst.FunctionDef); ok {
					lines = append(lines, "  "+describeFunc(fn))
				}
			}
		case *cst.FunctionDef:
			lines = append(lines, describeFunc(n))
		default:
			lines = append(lines, s.Kind().String())
		}
	}
	return lines
}

func describeFunc(fn *cst.FunctionDef) string {
	var b strings.Builder
	for _, d := range fn.Decorators {
		b.WriteString("@" + cst.Code(d.Value) + " ")
	}
	if fn.Async {
		b.WriteString("async ")
	}
	b.WriteString("def " + fn.Name)
	return b.String()
}
