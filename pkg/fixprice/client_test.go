package fixprice

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/internal/sessiontest"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// warmBrowser mounts on the first wait and sends one API request carrying h.
func warmBrowser(h map[string]string) *sessiontest.Browser {
	if h == nil {
		h = map[string]string{"x-key": "tok"}
	}
	return &sessiontest.Browser{MountOn: 1, Traffic: []map[string]string{h}}
}

func openClient(t *testing.T, fb *sessiontest.Browser, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithBrowser(fb), WithBackoff(time.Millisecond)}
	c, err := Open(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func lastRequest(t *testing.T, fb *sessiontest.Browser) (session.Request, *url.URL) {
	t.Helper()
	reqs := fb.Requests()
	require.NotEmpty(t, reqs, "no request reached the transport")
	req := reqs[len(reqs)-1]
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	return req, u
}

func TestOpen_WarmsUpAndServes(t *testing.T) {
	fb := warmBrowser(map[string]string{"x-key": "tok", "x-city": "3", "X-Language": "ru"})
	c := openClient(t, fb)

	assert.Equal(t, "tok", c.Token())
	city, ok := c.CityID()
	assert.True(t, ok)
	assert.Equal(t, 3, city)
	lang, _ := c.Language()
	assert.Equal(t, "ru", lang)
	assert.Equal(t, 1, c.Warmup().Attempts)

	_, err := c.Catalog.Tree(context.Background())
	require.NoError(t, err)

	req, _ := lastRequest(t, fb)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, CatalogURL+"/v1/category", req.URL)
	assert.Equal(t, "tok", req.Headers["x-key"])
	assert.Equal(t, "3", req.Headers["x-city"])
	assert.Equal(t, "https://fix-price.com/catalog", req.Referrer)
}

func TestOpen_ExplicitSessionValuesWin(t *testing.T) {
	fb := warmBrowser(map[string]string{"x-key": "tok", "x-city": "3", "x-language": "ru"})
	c := openClient(t, fb, WithCityID(7), WithLanguage("kk"))

	city, _ := c.CityID()
	assert.Equal(t, 7, city)
	lang, _ := c.Language()
	assert.Equal(t, "kk", lang)
}

func TestOpen_WarmupFailureClosesBrowserOnce(t *testing.T) {
	fb := &sessiontest.Browser{HTML: "<title>Just a moment...</title>"}

	c, err := Open(context.Background(), WithBrowser(fb), WithWarmupAttempts(2))
	require.Error(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrWarmup)

	var werr *WarmupError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 2, werr.Attempts)

	nav, reloads, _ := fb.Counts()
	assert.Equal(t, 1, nav)
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 1, fb.Closes())
}

func TestOpen_MissingTokenFails(t *testing.T) {
	fb := warmBrowser(map[string]string{"x-city": "3"})

	_, err := Open(context.Background(), WithBrowser(fb), WithTokenTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWarmup)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, fb.Closes())
}

func TestOpen_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero retries", WithRetries(0)},
		{"zero timeout", WithTimeout(0)},
		{"unknown transport", WithTransport("ftp")},
		{"bad language", WithLanguage("rus")},
		{"negative city", WithCityID(-1)},
		{"bad proxy", WithProxy("not a proxy")},
		{"zero warm-up attempts", WithWarmupAttempts(0)},
		{"negative rate limit", WithRateLimit(-5)},
		{"zero backoff", WithBackoff(0)},
		{"negative backoff", WithBackoff(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := warmBrowser(nil)
			_, err := Open(context.Background(), WithBrowser(fb), tt.opt)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			nav, _, waits := fb.Counts()
			assert.Zero(t, nav, "validation must happen before navigation")
			assert.Zero(t, waits)
			assert.Equal(t, 1, fb.Closes())
		})
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	fb := warmBrowser(nil)
	c, err := Open(context.Background(), WithBrowser(fb))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, fb.Closes())

	_, err = c.Catalog.Tree(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_Accessors(t *testing.T) {
	c := openClient(t, warmBrowser(nil))

	require.NoError(t, c.SetCityID(10))
	assert.ErrorIs(t, c.SetCityID(0), ErrValidation)
	city, _ := c.CityID()
	assert.Equal(t, 10, city, "failed set keeps the previous value")
	c.ClearCityID()
	_, ok := c.CityID()
	assert.False(t, ok)

	require.NoError(t, c.SetLanguage("en-US"))
	c.ClearLanguage()
	_, ok = c.Language()
	assert.False(t, ok)

	require.NoError(t, c.SetDeliveryType("courier"))
	assert.ErrorIs(t, c.SetDeliveryType("drone"), ErrValidation)
	mode, _ := c.DeliveryType()
	assert.Equal(t, "courier", mode)

	require.NoError(t, c.SetStoreID("s-1"))
	id, _ := c.StoreID()
	assert.Equal(t, "s-1", id)

	require.NoError(t, c.SetClientRoute("/catalog"))
	route, _ := c.ClientRoute()
	assert.Equal(t, "/catalog", route)
}

func TestClient_AdoptsCityFromResponse(t *testing.T) {
	fb := warmBrowser(nil)
	fb.Handler = sessiontest.Sequence(sessiontest.JSON(200, `{"city": {"id": 12, "name": "Тверь"}, "language": "ru"}`))
	c := openClient(t, fb)

	_, err := c.Advertising.HomeBrandsList(context.Background())
	require.NoError(t, err)

	city, ok := c.CityID()
	require.True(t, ok)
	assert.Equal(t, 12, city)
	lang, _ := c.Language()
	assert.Equal(t, "ru", lang)
}

func TestClient_RetryExhausted(t *testing.T) {
	fb := warmBrowser(nil)
	fb.Handler = sessiontest.Sequence(sessiontest.JSON(200,
		`{"name":"Forbidden","message":"bot","code":403,"type":"x","status":403,"comment":""}`))
	c := openClient(t, fb, WithRetries(2))

	_, err := c.Catalog.Tree(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)

	var rerr *RetryExhaustedError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Attempts)
	assert.Len(t, fb.Requests(), 2)
}

func TestClient_CustomClassifier(t *testing.T) {
	fb := warmBrowser(nil)
	fb.Handler = sessiontest.Sequence(
		sessiontest.JSON(200, `{"blocked": true}`),
		sessiontest.JSON(200, `{"items": []}`),
	)
	c := openClient(t, fb, WithClassifier(func(p any) bool {
		obj, ok := p.(map[string]any)
		return ok && obj["blocked"] == true
	}))

	resp, err := c.Catalog.Tree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
}

func TestCatalog_ProductsList(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb)

	_, err := c.Catalog.ProductsList(context.Background(), ProductsQuery{
		Category:    "household",
		Subcategory: "kitchen",
		Page:        2,
		Limit:       10,
	})
	require.NoError(t, err)

	req, u := lastRequest(t, fb)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/buyer/v1/product/in/household/kitchen", u.Path)
	assert.Equal(t, "2", u.Query().Get("page"))
	assert.Equal(t, "10", u.Query().Get("limit"))
	assert.Equal(t, "sold", u.Query().Get("sort"))
	assert.Equal(t, "/catalog/household/kitchen", req.Headers["x-client-route"])
	assert.Equal(t, "application/json", req.Headers["Content-Type"])
	assert.JSONEq(t, `{
		"category": "household/kitchen",
		"brand": [], "price": [],
		"isDividedPrice": false, "isNew": false, "isHit": false, "isSpecialPrice": false
	}`, string(req.Body))

	// the per-call route does not stick
	_, ok := c.ClientRoute()
	assert.False(t, ok)
}

func TestCatalog_ProductsListDefaults(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb)

	_, err := c.Catalog.ProductsList(context.Background(), ProductsQuery{Category: "toys"})
	require.NoError(t, err)

	req, u := lastRequest(t, fb)
	assert.Equal(t, "/buyer/v1/product/in/toys", u.Path)
	assert.Equal(t, "1", u.Query().Get("page"))
	assert.Equal(t, "24", u.Query().Get("limit"))
	assert.Equal(t, "sold", u.Query().Get("sort"))
	assert.Equal(t, "/catalog/toys", req.Headers["x-client-route"])
	assert.JSONEq(t, `{"category":"toys","brand":[],"price":[],"isDividedPrice":false,"isNew":false,"isHit":false,"isSpecialPrice":false}`, string(req.Body))
}

func TestCatalog_ProductsListValidation(t *testing.T) {
	tests := []struct {
		name string
		q    ProductsQuery
	}{
		{"limit above max", ProductsQuery{Category: "toys", Limit: 28}},
		{"negative limit", ProductsQuery{Category: "toys", Limit: -1}},
		{"negative page", ProductsQuery{Category: "toys", Page: -1}},
		{"no category", ProductsQuery{}},
	}
	fb := warmBrowser(nil)
	c := openClient(t, fb)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Catalog.ProductsList(context.Background(), tt.q)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, fb.Requests(), "invalid queries must not reach the transport")

	_, err := c.Catalog.ProductsList(context.Background(), ProductsQuery{Category: "toys", Limit: MaxLimit})
	assert.NoError(t, err)
}

func TestProduct_BalanceRequiresCity(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb)

	_, err := c.Catalog.Product.Balance(context.Background(), 42, BalanceQuery{})
	assert.ErrorIs(t, err, ErrCityRequired)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, fb.Requests())
}

func TestProduct_Balance(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb, WithCityID(5))

	_, err := c.Catalog.Product.Balance(context.Background(), 42, BalanceQuery{InStock: true, Search: "Ленина 1"})
	require.NoError(t, err)

	req, u := lastRequest(t, fb)
	assert.Equal(t, "/buyer/v1/store/balance/42", u.Path)
	assert.Equal(t, "all", u.Query().Get("canPickup"))
	assert.Equal(t, "true", u.Query().Get("inStock"))
	assert.Equal(t, "Ленина 1", u.Query().Get("addressPart"))
	assert.Equal(t, "5", req.Headers["x-city"])

	_, err = c.Catalog.Product.Balance(context.Background(), 42, BalanceQuery{})
	require.NoError(t, err)
	_, u = lastRequest(t, fb)
	assert.False(t, u.Query().Has("inStock"))
	assert.False(t, u.Query().Has("addressPart"))

	_, err = c.Catalog.Product.Balance(context.Background(), 0, BalanceQuery{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGeolocation_Countries(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb)
	ctx := context.Background()

	_, err := c.Geolocation.CountriesList(ctx, "")
	require.NoError(t, err)
	req, _ := lastRequest(t, fb)
	assert.Equal(t, CatalogURL+"/v1/location/country", req.URL)

	_, err = c.Geolocation.CountriesList(ctx, "kz")
	require.NoError(t, err)
	_, u := lastRequest(t, fb)
	assert.Equal(t, "KZ", u.Query().Get("alias"))

	n := len(fb.Requests())
	for _, bad := range []string{"rus", "r", "1a"} {
		_, err = c.Geolocation.CountriesList(ctx, bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
	assert.Len(t, fb.Requests(), n)
}

func TestGeolocation_RegionsAndCities(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (*Response, error)
		want string
	}{
		{"regions all", func() (*Response, error) { return c.Geolocation.RegionsList(ctx, 0) }, "/v1/location/region"},
		{"regions of country", func() (*Response, error) { return c.Geolocation.RegionsList(ctx, 2) }, "/v1/location/region?countryId=2"},
		{"cities all", func() (*Response, error) { return c.Geolocation.CitiesList(ctx, 0) }, "/v1/location/city"},
		{"cities of country", func() (*Response, error) { return c.Geolocation.CitiesList(ctx, 3) }, "/v1/location/city?countryId=3"},
		{"city info", func() (*Response, error) { return c.Geolocation.CityInfo(ctx, 9) }, "/v1/location/city/9"},
		{"home brands", func() (*Response, error) { return c.Advertising.HomeBrandsList(ctx) }, "/v1/home/brand"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			require.NoError(t, err)
			req, _ := lastRequest(t, fb)
			assert.Equal(t, CatalogURL+tt.want, req.URL)
		})
	}

	_, err := c.Geolocation.CityInfo(ctx, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestShop_Search(t *testing.T) {
	fb := warmBrowser(nil)
	c := openClient(t, fb)

	_, err := c.Geolocation.Shop.Search(context.Background(), ShopQuery{})
	require.NoError(t, err)
	_, u := lastRequest(t, fb)
	assert.Equal(t, "/buyer/v1/store", u.Path)
	assert.Equal(t, url.Values{
		"searchType":            {"metro"},
		"canPickup":             {"all"},
		"showTemporarilyClosed": {"all"},
	}, u.Query())

	_, err = c.Geolocation.Shop.Search(context.Background(), ShopQuery{CountryID: 1, RegionID: 2, CityID: 3, Search: "Мира"})
	require.NoError(t, err)
	_, u = lastRequest(t, fb)
	q := u.Query()
	assert.Equal(t, "1", q.Get("countryId"))
	assert.Equal(t, "2", q.Get("regionId"))
	assert.Equal(t, "3", q.Get("cityId"))
	assert.Equal(t, "Мира", q.Get("addressPart"))
}

func TestGeneral_DownloadImage(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := openClient(t, warmBrowser(nil))
	img, err := c.General.DownloadImage(context.Background(), srv.URL+"/images/items/cup.png?v=3", DownloadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "cup.png", img.Name)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, []byte("png-bytes"), img.Data)
	assert.Equal(t, "sessiontest", gotUA)
}

func TestOpen_HTTPTransport(t *testing.T) {
	var gotKey, gotCookie, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-key")
		gotReferer = r.Referer()
		if ck, err := r.Cookie("sid"); err == nil {
			gotCookie = ck.Value
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"alias":"toys"}]`))
	}))
	defer srv.Close()

	fb := warmBrowser(nil)
	fb.TrafficURL = srv.URL + "/v1/category"
	fb.Cookie = []*http.Cookie{{Name: "sid", Value: "abc", Path: "/"}}

	c := openClient(t, fb, WithBaseURL(srv.URL+"/"), WithTransport(TransportHTTP))
	assert.Equal(t, 1, fb.Closes(), "browser is released after the cookie hand-off")

	resp, err := c.Catalog.Tree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "tok", gotKey)
	assert.Equal(t, "abc", gotCookie)
	assert.Equal(t, "https://fix-price.com/catalog", gotReferer)
	assert.Empty(t, fb.Requests(), "no call goes through the browser")

	require.NoError(t, c.Close())
	assert.Equal(t, 1, fb.Closes())
}

func TestOpen_WithLogger(t *testing.T) {
	prev := logger.Get()
	t.Cleanup(func() { logger.SetLogger(prev) })

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	openClient(t, warmBrowser(nil), WithLogger(l))
	assert.Contains(t, buf.String(), "warm-up complete")
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fb := warmBrowser(nil)
	_, err := Open(ctx, WithBrowser(fb))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWarmup)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fb.Closes())
}

func TestNewGeneralService_UsesUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	g := NewGeneralService(WithUserAgent("probe/1.0"))
	img, err := g.DownloadImage(context.Background(), srv.URL+"/a/b/logo.webp", DownloadOptions{MaxBytes: 1024})
	require.NoError(t, err)
	assert.Equal(t, "logo.webp", img.Name)
	assert.Equal(t, "probe/1.0", gotUA)

	_, err = g.DownloadImage(context.Background(), srv.URL+"/big.png", DownloadOptions{MaxBytes: 2})
	assert.ErrorIs(t, err, ErrTooLarge)
}
