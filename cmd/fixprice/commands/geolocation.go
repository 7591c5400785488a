package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/fixprice/pkg/fixprice"
)

var countriesCmd = &cobra.Command{
	Use:   "countries [ISO2]",
	Short: "List countries",
	Long: `List countries. With an ISO-2 code the API lists that country first.

Examples:
  fixprice countries
  fixprice countries kz`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var alias string
		if len(args) > 0 {
			alias = args[0]
		}
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Geolocation.CountriesList(ctx, alias)
		})
	},
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List regions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		country, _ := cmd.Flags().GetInt("country")
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Geolocation.RegionsList(ctx, country)
		})
	},
}

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List cities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		country, _ := cmd.Flags().GetInt("country")
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Geolocation.CitiesList(ctx, country)
		})
	},
}

var cityCmd = &cobra.Command{
	Use:   "city CITY_ID",
	Short: "Show one city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: city id %q is not a number", fixprice.ErrValidation, args[0])
		}
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Geolocation.CityInfo(ctx, id)
		})
	},
}

var shopsCmd = &cobra.Command{
	Use:   "shops",
	Short: "Search stores",
	Long: `Search stores, temporarily closed ones included. Filters combine.

Examples:
  fixprice shops --city-id 3
  fixprice shops --region 12 --search "Ленина"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var q fixprice.ShopQuery
		q.CountryID, _ = cmd.Flags().GetInt("country")
		q.RegionID, _ = cmd.Flags().GetInt("region")
		q.CityID, _ = cmd.Flags().GetInt("city-id")
		q.Search, _ = cmd.Flags().GetString("search")
		return runAPI(func(ctx context.Context, c *fixprice.Client) (*fixprice.Response, error) {
			return c.Geolocation.Shop.Search(ctx, q)
		})
	},
}

func init() {
	rootCmd.AddCommand(countriesCmd, regionsCmd, citiesCmd, cityCmd, shopsCmd)

	regionsCmd.Flags().Int("country", 0, "only regions of this country id")
	citiesCmd.Flags().Int("country", 0, "only cities of this country id (the API defaults to Russia)")

	sf := shopsCmd.Flags()
	sf.Int("country", 0, "country id")
	sf.Int("region", 0, "region id")
	sf.Int("city-id", 0, "city id")
	sf.String("search", "", "address fragment")
}
