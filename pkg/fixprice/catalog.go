package fixprice

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jmylchreest/fixprice/internal/pipeline"
)

// Sort orders a product listing.
type Sort string

// SortPopularity is the storefront's default ordering. Any other value the
// API accepts can be passed as Sort("...").
const SortPopularity Sort = "sold"

// Listing limits.
const (
	DefaultPage  = 1
	DefaultLimit = 24
	MaxLimit     = 27
)

// CatalogService covers the category tree and product listings.
type CatalogService struct {
	*endpoint

	Product *ProductService
}

// Tree returns the category tree.
func (s *CatalogService) Tree(ctx context.Context) (*Response, error) {
	return s.get(ctx, "/v1/category", nil)
}

// ProductsQuery selects one page of a category listing.
// Zero Page, Limit and Sort take their defaults.
type ProductsQuery struct {
	Category    string `validate:"required"`
	Subcategory string
	Page        int  `validate:"gte=1"`
	Limit       int  `validate:"gte=1,lte=27"`
	Sort        Sort `validate:"required"`
}

func (q ProductsQuery) withDefaults() ProductsQuery {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Sort == "" {
		q.Sort = SortPopularity
	}
	return q
}

// productFilter is the body the storefront posts with every listing.
type productFilter struct {
	Category       string `json:"category"`
	Brand          []any  `json:"brand"`
	Price          []any  `json:"price"`
	IsDividedPrice bool   `json:"isDividedPrice"`
	IsNew          bool   `json:"isNew"`
	IsHit          bool   `json:"isHit"`
	IsSpecialPrice bool   `json:"isSpecialPrice"`
}

// ProductsList returns one page of products in a category or subcategory.
// Page must be at least 1 and Limit within 1..27.
func (s *CatalogService) ProductsList(ctx context.Context, q ProductsQuery) (*Response, error) {
	q = q.withDefaults()
	if err := validate.Struct(q); err != nil {
		return nil, validationError(err)
	}

	path := "/v1/product/in/" + url.PathEscape(q.Category)
	route := "/catalog/" + q.Category
	category := q.Category
	if q.Subcategory != "" {
		path += "/" + url.PathEscape(q.Subcategory)
		route += "/" + q.Subcategory
		category += "/" + q.Subcategory
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("sort", string(q.Sort))

	return s.pipeline.Do(ctx, pipeline.Request{
		Method: http.MethodPost,
		URL:    s.url(path, query),
		Body: productFilter{
			Category: category,
			Brand:    []any{},
			Price:    []any{},
		},
		Route: route,
	})
}

// ProductService covers per-product lookups.
type ProductService struct {
	*endpoint
}

// BalanceQuery filters a stock lookup.
type BalanceQuery struct {
	InStock bool   // only stores that have the product
	Search  string // address fragment
}

// Balance returns the stock of a product across the stores of the session
// city. It fails with ErrCityRequired when no city is set.
func (s *ProductService) Balance(ctx context.Context, productID int, q BalanceQuery) (*Response, error) {
	if err := validate.Var(productID, "gte=1"); err != nil {
		return nil, fmt.Errorf("%w: product id must be at least 1", ErrValidation)
	}
	if _, ok := s.store.CityID(); !ok {
		return nil, ErrCityRequired
	}

	query := url.Values{}
	query.Set("canPickup", "all")
	if q.Search != "" {
		query.Set("addressPart", q.Search)
	}
	if q.InStock {
		query.Set("inStock", "true")
	}
	return s.get(ctx, "/v1/store/balance/"+strconv.Itoa(productID), query)
}
