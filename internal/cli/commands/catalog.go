package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/session"
)

// requestFlags are the backend knobs every catalog command accepts
type requestFlags struct {
	timeout time.Duration
	retries int
	backoff time.Duration
}

func addRequestFlags(cmd *cobra.Command, app *App, f *requestFlags) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", app.Config.API.Timeout, "Per-attempt request timeout")
	cmd.Flags().IntVar(&f.retries, "retries", app.Config.API.Retries, fmt.Sprintf("Extra attempts after a connection failure (0-%d)", config.MaxAPIRetries))
	cmd.Flags().DurationVar(&f.backoff, "backoff", app.Config.API.Backoff, "Delay before the first retry, doubled on each one")
}

func (f requestFlags) options() ([]apiclient.RequestOption, error) {
	if f.timeout <= 0 {
		return nil, fmt.Errorf("--timeout must be positive")
	}
	if f.retries < 0 || f.retries > config.MaxAPIRetries {
		return nil, fmt.Errorf("--retries must be between 0 and %d", config.MaxAPIRetries)
	}
	if f.backoff < 0 {
		return nil, fmt.Errorf("--backoff must not be negative")
	}
	return []apiclient.RequestOption{
		apiclient.WithTimeout(f.timeout),
		apiclient.WithRetries(f.retries),
		apiclient.WithBackoff(f.backoff),
	}, nil
}

// NewSKUsCmd creates the skus command
func NewSKUsCmd(app *App) *cobra.Command {
	var limit int
	var output string
	var req requestFlags

	cmd := &cobra.Command{
		Use:   "skus [code]",
		Short: "List SKUs, or show one by code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}
			opts, err := req.options()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				return app.fetchOne(cmd.Context(), output, func(ctx context.Context, c *apiclient.Client) (apiclient.Record, error) {
					return c.GetSKU(ctx, args[0], opts...)
				})
			}
			return app.fetchList(cmd.Context(), output, func(ctx context.Context, c *apiclient.Client) (apiclient.Records, error) {
				return c.ListSKUs(ctx, limit, opts...)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of SKUs")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	addRequestFlags(cmd, app, &req)

	return cmd
}

// NewSuppliersCmd creates the suppliers command
func NewSuppliersCmd(app *App) *cobra.Command {
	var q apiclient.ListQuery
	var output string
	var req requestFlags

	cmd := &cobra.Command{
		Use:   "suppliers [id]",
		Short: "List suppliers, or show one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			opts, err := req.options()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return app.fetchOne(cmd.Context(), output, func(ctx context.Context, c *apiclient.Client) (apiclient.Record, error) {
					return c.GetSupplier(ctx, id, opts...)
				})
			}
			return app.fetchList(cmd.Context(), output, func(ctx context.Context, c *apiclient.Client) (apiclient.Records, error) {
				return c.ListSuppliers(ctx, q, opts...)
			})
		},
	}

	addListFlags(cmd, &q, "nombre")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	addRequestFlags(cmd, app, &req)

	return cmd
}

// NewCategoriesCmd creates the categories command
func NewCategoriesCmd(app *App) *cobra.Command {
	var q apiclient.ListQuery
	var output string
	var req requestFlags

	cmd := &cobra.Command{
		Use:   "categories [id]",
		Short: "List categories, or show one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			opts, err := req.options()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return app.fetchOne(cmd.Context(), output, func(ctx context.Context, c *apiclient.Client) (apiclient.Record, error) {
					return c.GetCategory(ctx, id, opts...)
				})
			}
			return app.fetchList(cmd.Context(), output, func(ctx context.Context, c *apiclient.Client) (apiclient.Records, error) {
				return c.ListCategories(ctx, q, opts...)
			})
		},
	}

	addListFlags(cmd, &q, "macrocategoria")
	cmd.Flags().IntVar(&q.MacroID, "macro-id", 0, "Only categories under this macro category")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	addRequestFlags(cmd, app, &req)

	return cmd
}

func addListFlags(cmd *cobra.Command, q *apiclient.ListQuery, defaultOrder string) {
	cmd.Flags().StringVarP(&q.Q, "query", "q", "", "Search text")
	cmd.Flags().IntVar(&q.Limit, "limit", 10, "Maximum number of rows")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().StringVar(&q.Order, "order", defaultOrder, "Sort key, prefix with - to reverse")
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func (a *App) fetchList(ctx context.Context, format string, fetch func(context.Context, *apiclient.Client) (apiclient.Records, error)) error {
	return a.run(ctx, session.Interaction{}, session.Options{}, func(_ *session.Authenticated, c *apiclient.Client) error {
		rows, err := fetch(ctx, c)
		if err != nil {
			return err
		}
		return printRecords(a.Out, format, rows)
	})
}

func (a *App) fetchOne(ctx context.Context, format string, fetch func(context.Context, *apiclient.Client) (apiclient.Record, error)) error {
	return a.run(ctx, session.Interaction{}, session.Options{}, func(_ *session.Authenticated, c *apiclient.Client) error {
		row, err := fetch(ctx, c)
		if err != nil {
			return err
		}
		return printRecord(a.Out, format, row)
	})
}
