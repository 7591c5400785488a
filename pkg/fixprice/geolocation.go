package fixprice

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GeolocationService covers countries, regions, cities and stores.
type GeolocationService struct {
	*endpoint

	Shop *ShopService
}

// CountriesList returns all countries. A non-empty alias must be an ISO-2
// code; the API then puts that country first.
func (s *GeolocationService) CountriesList(ctx context.Context, alias string) (*Response, error) {
	var query url.Values
	if alias != "" {
		if err := validate.Var(alias, "len=2,alpha"); err != nil {
			return nil, fmt.Errorf("%w: alias %q must be an ISO-2 country code", ErrValidation, alias)
		}
		query = url.Values{"alias": {strings.ToUpper(alias)}}
	}
	return s.get(ctx, "/v1/location/country", query)
}

// RegionsList returns regions, restricted to a country when countryID > 0.
func (s *GeolocationService) RegionsList(ctx context.Context, countryID int) (*Response, error) {
	return s.get(ctx, "/v1/location/region", countryQuery(countryID))
}

// CitiesList returns cities, restricted to a country when countryID > 0.
// The API defaults to Russia otherwise.
func (s *GeolocationService) CitiesList(ctx context.Context, countryID int) (*Response, error) {
	return s.get(ctx, "/v1/location/city", countryQuery(countryID))
}

// CityInfo returns one city.
func (s *GeolocationService) CityInfo(ctx context.Context, cityID int) (*Response, error) {
	if err := validate.Var(cityID, "gte=1"); err != nil {
		return nil, fmt.Errorf("%w: city id must be at least 1", ErrValidation)
	}
	return s.get(ctx, "/v1/location/city/"+strconv.Itoa(cityID), nil)
}

func countryQuery(countryID int) url.Values {
	if countryID <= 0 {
		return nil
	}
	return url.Values{"countryId": {strconv.Itoa(countryID)}}
}

// ShopService covers store search.
type ShopService struct {
	*endpoint
}

// ShopQuery filters a store search. Zero values are left out.
type ShopQuery struct {
	CountryID int
	RegionID  int
	CityID    int
	Search    string // address fragment
}

// Search finds stores, including temporarily closed ones.
func (s *ShopService) Search(ctx context.Context, q ShopQuery) (*Response, error) {
	query := url.Values{}
	query.Set("searchType", "metro")
	query.Set("canPickup", "all")
	query.Set("showTemporarilyClosed", "all")
	if q.CountryID > 0 {
		query.Set("countryId", strconv.Itoa(q.CountryID))
	}
	if q.RegionID > 0 {
		query.Set("regionId", strconv.Itoa(q.RegionID))
	}
	if q.CityID > 0 {
		query.Set("cityId", strconv.Itoa(q.CityID))
	}
	if q.Search != "" {
		query.Set("addressPart", q.Search)
	}
	return s.get(ctx, "/v1/store", query)
}
