package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/spf13/cobra"
)

func newStockCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Read or overwrite stock levels",
	}
	cmd.AddCommand(newStockSetCommand(root), newStockGetCommand(root))
	return cmd
}

func newStockSetCommand(root *rootOptions) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "set PRODUCT QUANTITY",
		Short: "Set the available quantity of a product variant",
		Example: `  minishop-orders stock set sku-1 25
  minishop-orders stock set sku-1 10 --variant red`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], err)
			}
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				stock, err := a.inventory.SetStock(ctx, args[0], variant, quantity)
				if err != nil {
					return err
				}
				printStock(cmd, stock)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "variant id")
	return cmd
}

func newStockGetCommand(root *rootOptions) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "get PRODUCT",
		Short: "Show the available quantity of a product variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				stock, err := a.inventory.Stock(ctx, args[0], variant)
				if err != nil {
					return err
				}
				printStock(cmd, stock)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "variant id")
	return cmd
}

func printStock(cmd *cobra.Command, s *dominv.Stock) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s\tquantity=%d\tversion=%d\tupdated=%s\n",
		s.Key, s.Quantity, s.Version, s.UpdatedAt.Format(time.RFC3339))
}
