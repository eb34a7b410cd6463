package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/newsflow/internal/model"
)

// kakaoStub serves canned Kakao Local responses keyed by path and query
type kakaoStub struct {
	mu       sync.Mutex
	address  map[string]string
	keyword  map[string]string
	regions  string
	status   int
	requests []string
}

func (s *kakaoStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path+"?"+r.URL.Query().Get("query"))
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "KakaoAK test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	empty := `{"meta":{"total_count":0},"documents":[]}`
	switch r.URL.Path {
	case addressPath:
		body, ok := s.address[r.URL.Query().Get("query")]
		if !ok {
			body = empty
		}
		_, _ = w.Write([]byte(body))
	case keywordPath:
		body, ok := s.keyword[r.URL.Query().Get("query")]
		if !ok {
			body = empty
		}
		_, _ = w.Write([]byte(body))
	case regionCodePath:
		_, _ = w.Write([]byte(s.regions))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *kakaoStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if len(r) >= len(path) && r[:len(path)] == path {
			n++
		}
	}
	return n
}

const cityHallAddress = `{"meta":{"total_count":1},"documents":[
 {"address_name":"서울 중구 세종대로 110","x":"126.977829174031","y":"37.5663174209601"}]}`

const cityHallRegions = `{"documents":[
 {"region_type":"B","code":"1114010300","region_1depth_name":"서울특별시","region_2depth_name":"중구","region_3depth_name":"태평로1가"},
 {"region_type":"H","code":"1114055000","region_1depth_name":"서울특별시","region_2depth_name":"중구","region_3depth_name":"명동"}]}`

type recordingLimiter struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLimiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return nil
}

func newTestClient(t *testing.T, stub *kakaoStub, limiter RateLimiter) *KakaoClient {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	c, err := NewKakaoClient(KakaoConfig{BaseURL: server.URL, APIKey: "test-key"}, limiter, nil)
	require.NoError(t, err)
	return c
}

func TestKakaoClient_GeocodeByAddress(t *testing.T) {
	stub := &kakaoStub{
		address: map[string]string{"서울 중구 세종대로 110": cityHallAddress},
		regions: cityHallRegions,
	}
	limiter := &recordingLimiter{}
	c := newTestClient(t, stub, limiter)

	locs, err := c.GeocodeByAddress(context.Background(), "서울 중구 세종대로 110")
	require.NoError(t, err)
	require.Len(t, locs, 1)

	loc := locs[0]
	require.NotNil(t, loc.Coordinate)
	assert.InDelta(t, 37.5663174209601, loc.Coordinate.Lat, 1e-9)
	assert.InDelta(t, 126.977829174031, loc.Coordinate.Lon, 1e-9)
	assert.Equal(t, model.RegionTypeAdministrative, loc.Address.RegionType)
	assert.Equal(t, "1114055000", loc.Address.Code)
	assert.Equal(t, "서울 중구 세종대로 110", loc.Address.AddressName)
	assert.Equal(t, "명동", loc.Address.Depth3Name)
	assert.True(t, loc.Resolved())

	assert.Len(t, limiter.keys, 2, "address search and region lookup are both rate limited")
}

func TestKakaoClient_GeocodeByAddress_Broadens(t *testing.T) {
	stub := &kakaoStub{
		address: map[string]string{"서울 중구 세종대로 110": cityHallAddress},
		regions: cityHallRegions,
	}
	c := newTestClient(t, stub, nil)

	locs, err := c.GeocodeByAddress(context.Background(), "서울 중구 세종대로 110 시청 본관")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, 3, stub.count(addressPath))
}

func TestKakaoClient_GeocodeByAddress_NotFound(t *testing.T) {
	stub := &kakaoStub{regions: cityHallRegions}
	c := newTestClient(t, stub, nil)

	locs, err := c.GeocodeByAddress(context.Background(), "없는 주소 123")
	require.NoError(t, err)
	assert.Empty(t, locs)
	assert.NotNil(t, locs)
	assert.Equal(t, 0, stub.count(regionCodePath))
}

func TestKakaoClient_GeocodeByKeyword(t *testing.T) {
	stub := &kakaoStub{
		keyword: map[string]string{"서울시청": `{"meta":{"total_count":1},"documents":[
 {"place_name":"서울특별시청","address_name":"서울 중구 태평로1가 31","road_address_name":"서울 중구 세종대로 110","x":"126.977829174031","y":"37.5663174209601"}]}`},
		regions: cityHallRegions,
	}
	c := newTestClient(t, stub, nil)

	locs, err := c.GeocodeByKeyword(context.Background(), "서울시청")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "서울 중구 세종대로 110", locs[0].Address.AddressName)
	assert.Equal(t, "1114055000", locs[0].Address.Code)
}

func TestKakaoClient_UnknownRegion(t *testing.T) {
	stub := &kakaoStub{
		address: map[string]string{"독도": `{"documents":[{"address_name":"독도","x":"131.8","y":"37.2"}]}`},
		regions: `{"documents":[]}`,
	}
	c := newTestClient(t, stub, nil)

	locs, err := c.GeocodeByAddress(context.Background(), "독도")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, model.RegionTypeUnknown, locs[0].Address.RegionType)
	assert.Equal(t, model.UnknownRegionCode, locs[0].Address.Code)
	assert.Equal(t, "독도", locs[0].Address.AddressName)
	assert.Nil(t, locs[0].Coordinate)
	assert.False(t, locs[0].Resolved())
}

func TestKakaoClient_UpstreamError(t *testing.T) {
	stub := &kakaoStub{status: http.StatusTooManyRequests}
	c := newTestClient(t, stub, nil)

	_, err := c.GeocodeByAddress(context.Background(), "서울 중구 세종대로 110")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestKakaoClient_RequiresAPIKey(t *testing.T) {
	_, err := NewKakaoClient(KakaoConfig{}, nil, nil)
	assert.Error(t, err)
}
