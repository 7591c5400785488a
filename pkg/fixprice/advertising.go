package fixprice

import "context"

// AdvertisingService covers promotional content.
type AdvertisingService struct {
	*endpoint
}

// HomeBrandsList returns the brands featured on the home page.
func (s *AdvertisingService) HomeBrandsList(ctx context.Context) (*Response, error) {
	return s.get(ctx, "/v1/home/brand", nil)
}
