package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/model"
	"github.com/ppiankov/newsflow/internal/util"
)

const (
	addressPath    = "/v2/local/search/address.json"
	keywordPath    = "/v2/local/search/keyword.json"
	regionCodePath = "/v2/local/geo/coord2regioncode.json"
)

// RateLimiter blocks until a request to the given URL may proceed
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// KakaoConfig configures the Kakao Local API client
type KakaoConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// MinQueryTokens bounds address query broadening
	MinQueryTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// KakaoClient geocodes through the Kakao Local API
type KakaoClient struct {
	baseURL        string
	apiKey         string
	minQueryTokens int
	http           *http.Client
	limiter        RateLimiter
	logger         *slog.Logger
}

var _ Geocoder = (*KakaoClient)(nil)

// NewKakaoClient creates a reusable Kakao Local API client. limiter may be nil.
func NewKakaoClient(cfg KakaoConfig, limiter RateLimiter, logger *slog.Logger) (*KakaoClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kakao REST API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dapi.kakao.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	minTokens := cfg.MinQueryTokens
	if minTokens == 0 {
		minTokens = 2
	}

	return &KakaoClient{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         cfg.APIKey,
		minQueryTokens: minTokens,
		http:           util.NewHTTPClient(timeout, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		limiter:        limiter,
		logger:         logging.OrDefault(logger).With("component", "kakao_geocoder"),
	}, nil
}

type kakaoMeta struct {
	TotalCount int `json:"total_count"`
}

type addressDocument struct {
	AddressName string `json:"address_name"`
	X           string `json:"x"`
	Y           string `json:"y"`
}

type addressResponse struct {
	Meta      kakaoMeta         `json:"meta"`
	Documents []addressDocument `json:"documents"`
}

type placeDocument struct {
	PlaceName       string `json:"place_name"`
	AddressName     string `json:"address_name"`
	RoadAddressName string `json:"road_address_name"`
	X               string `json:"x"`
	Y               string `json:"y"`
}

type placeResponse struct {
	Meta      kakaoMeta       `json:"meta"`
	Documents []placeDocument `json:"documents"`
}

type regionDocument struct {
	RegionType string `json:"region_type"` // B (legal) or H (administrative)
	Code       string `json:"code"`
	Depth1Name string `json:"region_1depth_name"`
	Depth2Name string `json:"region_2depth_name"`
	Depth3Name string `json:"region_3depth_name"`
}

type regionResponse struct {
	Documents []regionDocument `json:"documents"`
}

// GeocodeByAddress resolves an address. When nothing matches, the query is broadened by
// dropping trailing tokens. At most the top-ranked match is returned.
func (c *KakaoClient) GeocodeByAddress(ctx context.Context, address string) ([]model.Location, error) {
	for _, query := range BroadenQueries(address, c.minQueryTokens) {
		var resp addressResponse
		if err := c.get(ctx, addressPath, url.Values{"query": {query}}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Documents) == 0 {
			c.logger.Debug("no address match", "query", query)
			continue
		}

		doc := resp.Documents[0]
		loc, ok, err := c.locate(ctx, doc.AddressName, doc.X, doc.Y)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []model.Location{}, nil
		}
		return []model.Location{loc}, nil
	}
	return []model.Location{}, nil
}

// GeocodeByKeyword resolves a place name through keyword search. At most the top-ranked place is returned.
func (c *KakaoClient) GeocodeByKeyword(ctx context.Context, keyword string) ([]model.Location, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []model.Location{}, nil
	}

	var resp placeResponse
	if err := c.get(ctx, keywordPath, url.Values{"query": {keyword}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Documents) == 0 {
		return []model.Location{}, nil
	}

	doc := resp.Documents[0]
	name := doc.RoadAddressName
	if name == "" {
		name = doc.AddressName
	}
	loc, ok, err := c.locate(ctx, name, doc.X, doc.Y)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.Location{}, nil
	}
	return []model.Location{loc}, nil
}

// locate turns a search hit into a location with its preferred region code.
// A hit without any region code becomes the unresolved placeholder.
func (c *KakaoClient) locate(ctx context.Context, addressName, x, y string) (model.Location, bool, error) {
	lon, errX := strconv.ParseFloat(x, 64)
	lat, errY := strconv.ParseFloat(y, 64)
	if errX != nil || errY != nil {
		c.logger.Warn("search hit without usable coordinates", "address", addressName, "x", x, "y", y)
		return model.Location{}, false, nil
	}

	region, err := c.regionFor(ctx, x, y)
	if err != nil {
		return model.Location{}, false, err
	}
	if region.Type == model.RegionTypeUnknown {
		c.logger.Debug("coordinate outside every known region", "address", addressName, "x", x, "y", y)
		return model.UnresolvedLocation(addressName), true, nil
	}

	loc := model.Location{
		Coordinate: &model.Coordinate{Lat: lat, Lon: lon},
		Address: model.Address{
			RegionType:  region.Type,
			Code:        region.Code,
			AddressName: addressName,
			Depth1Name:  region.Depth1Name,
			Depth2Name:  region.Depth2Name,
			Depth3Name:  region.Depth3Name,
		},
	}
	return loc, true, nil
}

// regionFor looks up both subdivisions of a coordinate and picks one.
// A coordinate outside every known region gets the UNKNOWN code.
func (c *KakaoClient) regionFor(ctx context.Context, x, y string) (Region, error) {
	var resp regionResponse
	if err := c.get(ctx, regionCodePath, url.Values{"x": {x}, "y": {y}}, &resp); err != nil {
		return Region{}, err
	}

	var legal, administrative *Region
	for _, doc := range resp.Documents {
		r := Region{
			Code:       doc.Code,
			Depth1Name: doc.Depth1Name,
			Depth2Name: doc.Depth2Name,
			Depth3Name: doc.Depth3Name,
		}
		switch doc.RegionType {
		case "B":
			r.Type = model.RegionTypeLegal
			legal = &r
		case "H":
			r.Type = model.RegionTypeAdministrative
			administrative = &r
		}
	}

	region, ok := PreferRegion(legal, administrative)
	if !ok {
		return Region{Type: model.RegionTypeUnknown, Code: model.UnknownRegionCode}, nil
	}
	return region, nil
}

func (c *KakaoClient) get(ctx context.Context, path string, params url.Values, v any) error {
	endpoint := c.baseURL + path + "?" + params.Encode()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s from %s, close body: %v", resp.Status, path, closeErr)
		}
		return fmt.Errorf("unexpected status %s from %s", resp.Status, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
