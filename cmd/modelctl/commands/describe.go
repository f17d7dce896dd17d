package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelkit/ml"
	"modelkit/schema"
)

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe MODEL",
		Short: "Show a model's metadata and schemas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.pool.Get(args[0])
			if err != nil {
				return err
			}
			return describe(cmd.OutOrStdout(), m)
		},
	}
}

func describe(w io.Writer, m ml.Model) error {
	d := ml.DescriptorOf(m)
	fmt.Fprintf(w, "Name:           %s\n", d.Name())
	fmt.Fprintf(w, "Qualified name: %s\n", d.QualifiedName())
	fmt.Fprintf(w, "Version:        %s\n", d.Version())
	fmt.Fprintf(w, "Description:    %s\n\n", d.Description())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTION\tFIELD\tTYPE\tREQUIRED\tDESCRIPTION")
	for _, dir := range []ml.Direction{ml.DirectionInput, ml.DirectionOutput} {
		s := ml.SchemaFor(m, dir)
		printFields(tw, string(dir), "", s)
		if s.AllowsUnknown() {
			fmt.Fprintf(tw, "%s\t*\tany\tno\tunknown fields are ignored\n", dir)
		}
	}
	return tw.Flush()
}

func printFields(w io.Writer, dir, prefix string, s *schema.Schema) {
	for _, f := range s.Fields() {
		typ := string(f.Type)
		if len(f.Enum) > 0 {
			typ += " (" + strings.Join(f.Enum, "|") + ")"
		}
		required := "no"
		if f.Required {
			required = "yes"
		}
		fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\t%s\n", dir, prefix, f.Name, typ, required, f.Description)
		if f.Nested != nil {
			printFields(w, dir, prefix+f.Name+".", f.Nested)
		}
	}
}
