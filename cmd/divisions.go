package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formsmith/internal/resolve"
)

func newDivisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "divisions [country]",
		Short: "Show the administrative-division table",
		Long: `Without arguments, lists every country with a known division field and the
countries whose forms need none. With a country, shows how it resolves.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return printDivision(cmd.OutOrStdout(), args[0])
			}
			return printDivisionTable(cmd.OutOrStdout())
		},
	}
}

func printDivision(w io.Writer, country string) error {
	spec := resolve.LookupDivision(country)
	def := spec.Default
	if def == "" {
		def = "-"
	}
	_, err := fmt.Fprintf(w, "country: %s\nkind: %s\ndefault: %s\nrequired: %t\nuk: %t\n",
		country, spec.Kind, def, !resolve.DivisionNotRequired(country), resolve.IsUK(country))
	return err
}

func printDivisionTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTRY\tKIND\tDEFAULT")
	for _, e := range resolve.DivisionTable() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Country, e.Kind, e.Default)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nNo division field: %s\n", strings.Join(resolve.NoDivisionCountries(), ", "))
	return err
}
