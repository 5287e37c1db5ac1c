package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document/htmldoc"
	"github.com/xkilldash9x/formsmith/internal/observability"
	"github.com/xkilldash9x/formsmith/internal/orchestrator"
	"github.com/xkilldash9x/formsmith/internal/resolve"
	"github.com/xkilldash9x/formsmith/internal/validate"
)

type resolveOptions struct {
	account   schemas.Account
	printHTML bool
}

func newResolveCmd() *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <form.html>",
		Short: "Run the resolver against a saved HTML form and print the outcome",
		Long: `Parses a local HTML file, resolves and validates every field for one account,
and prints the form outcome as JSON. No browser is started; layout comes from
inline styles only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runResolve(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.account.Country, "country", "", "account country (default France)")
	flags.StringVar(&opts.account.City, "city", "", "account city")
	flags.StringVar(&opts.account.ZipCode, "zip", "", "account postal code")
	flags.StringVar(&opts.account.State, "state", "", "account state, province or department")
	flags.StringVar(&opts.account.Address, "address", "", "account street address")
	flags.StringVar(&opts.account.Mobile, "mobile", "", "account mobile number")
	flags.StringVar(&opts.account.LastName, "last-name", "", "account last name")
	flags.StringVar(&opts.account.Gender, "gender", "", "account gender")
	flags.BoolVar(&opts.printHTML, "print-html", false, "print the document after resolution")
	flags.String("strictness", string(config.StrictnessBalanced), "resolver strictness: strict, balanced or aggressive")
	bindFlag(flags, "strictness", "resolver.strictness")
	return cmd
}

// staticSettle skips the country settle: a parsed document never re-renders.
func staticSettle(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func runResolve(ctx context.Context, cfg *config.Config, path string, opts *resolveOptions, out io.Writer, logger *zap.Logger) error {
	doc, err := htmldoc.Load(path, htmldoc.WithLogger(logger))
	if err != nil {
		return err
	}
	plan, err := resolve.NewPlan(opts.account)
	if err != nil {
		return err
	}

	engine := resolve.New(doc, cfg.Resolver(), logger)
	orch, err := orchestrator.New(cfg.Resolver(), logger, engine, validate.New(doc, logger),
		orchestrator.WithSleep(staticSettle))
	if err != nil {
		return err
	}
	outcome, err := orch.Run(ctx, plan)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
		return err
	}
	if opts.printHTML {
		if err := doc.Render(out); err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		fmt.Fprintln(out)
	}
	return nil
}
