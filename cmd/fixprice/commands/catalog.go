package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/fixprice/pkg/fixprice"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the category tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Catalog.Tree(ctx)
		})
	},
}

var productsCmd = &cobra.Command{
	Use:   "products CATEGORY [SUBCATEGORY]",
	Short: "List products in a category",
	Long: `List one page of products in a category or subcategory.

Category and subcategory are the aliases from "fixprice tree".

Examples:
  fixprice products kosmetika-i-gigiena
  fixprice products kosmetika-i-gigiena ukhod-za-litsom --page 3 --limit 27`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runProducts,
}

var balanceCmd = &cobra.Command{
	Use:   "balance PRODUCT_ID",
	Short: "Show stock of a product in the stores of a city",
	Long: `Show stock of a product across the stores of the session city.

A city is required: pass --city or set it in the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(treeCmd, productsCmd, balanceCmd)

	pf := productsCmd.Flags()
	pf.Int("page", fixprice.DefaultPage, "page number, from 1")
	pf.Int("limit", fixprice.DefaultLimit, fmt.Sprintf("products per page (1-%d)", fixprice.MaxLimit))
	pf.String("sort", string(fixprice.SortPopularity), "sort order as the API names it")

	bf := balanceCmd.Flags()
	bf.Bool("in-stock", true, "only stores that have the product")
	bf.String("search", "", "filter stores by address fragment")
}

func runProducts(cmd *cobra.Command, args []string) error {
	q := fixprice.ProductsQuery{Category: args[0]}
	if len(args) > 1 {
		q.Subcategory = args[1]
	}
	q.Page, _ = cmd.Flags().GetInt("page")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	sort, _ := cmd.Flags().GetString("sort")
	q.Sort = fixprice.Sort(sort)

	return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
		return c.Catalog.ProductsList(ctx, q)
	})
}

func runBalance(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: product id %q is not a number", fixprice.ErrValidation, args[0])
	}
	inStock, _ := cmd.Flags().GetBool("in-stock")
	search, _ := cmd.Flags().GetString("search")

	return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
		return c.Catalog.Product.Balance(ctx, id, fixprice.BalanceQuery{InStock: inStock, Search: search})
	})
}
