package extract

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
)

// fakePrompts answers each prompt id with canned JSON and records the inputs
type fakePrompts struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []string
	inputs  map[string]any
}

func newFakePrompts(answers map[string]string) *fakePrompts {
	return &fakePrompts{answers: answers, errs: map[string]error{}, inputs: map[string]any{}}
}

func (f *fakePrompts) Execute(ctx context.Context, promptID string, input, output any) (llm.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, promptID)
	f.inputs[promptID] = input
	if err := f.errs[promptID]; err != nil {
		return llm.Metadata{}, err
	}
	answer, ok := f.answers[promptID]
	if !ok {
		return llm.Metadata{}, errors.New("no canned answer for " + promptID)
	}
	return llm.Metadata{PromptID: promptID}, json.Unmarshal([]byte(answer), output)
}

func (f *fakePrompts) count(promptID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == promptID {
			n++
		}
	}
	return n
}

type fakeIncidentTypes struct {
	types []model.IncidentType
	err   error
}

func (f *fakeIncidentTypes) FindAll(ctx context.Context) ([]model.IncidentType, error) {
	return f.types, f.err
}

type fakeUrgencies struct {
	levels []model.Urgency
	err    error
}

func (f *fakeUrgencies) FindAll(ctx context.Context) ([]model.Urgency, error) {
	return f.levels, f.err
}

// fakeGeocoder serves locations per query and counts calls per method
type fakeGeocoder struct {
	mu          sync.Mutex
	byAddress   map[string][]model.Location
	byKeyword   map[string][]model.Location
	errs        map[string]int // failures left per query
	addrCalls   []string
	kwCalls     []string
	failForever map[string]bool
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{
		byAddress:   map[string][]model.Location{},
		byKeyword:   map[string][]model.Location{},
		errs:        map[string]int{},
		failForever: map[string]bool{},
	}
}

func (f *fakeGeocoder) fail(query string) error {
	if f.failForever[query] {
		return errors.New("geocoder unavailable")
	}
	if f.errs[query] > 0 {
		f.errs[query]--
		return errors.New("geocoder timeout")
	}
	return nil
}

func (f *fakeGeocoder) GeocodeByAddress(ctx context.Context, address string) ([]model.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrCalls = append(f.addrCalls, address)
	if err := f.fail(address); err != nil {
		return nil, err
	}
	return append([]model.Location{}, f.byAddress[address]...), nil
}

func (f *fakeGeocoder) GeocodeByKeyword(ctx context.Context, keyword string) ([]model.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kwCalls = append(f.kwCalls, keyword)
	if err := f.fail(keyword); err != nil {
		return nil, err
	}
	return append([]model.Location{}, f.byKeyword[keyword]...), nil
}

func resolvedAt(name, code string, lat, lon float64) model.Location {
	return model.Location{
		Coordinate: &model.Coordinate{Lat: lat, Lon: lon},
		Address: model.Address{
			RegionType:  model.RegionTypeAdministrative,
			Code:        code,
			AddressName: name,
		},
	}
}

func sampleRefined() model.RefinedArticle {
	return model.RefinedArticle{
		Title:   "강남역 인근 침수로 차량 통제",
		Content: "집중호우로 서울 강남역 일대 도로가 침수돼 차량 통행이 통제됐다.",
		Summary: "강남역 일대 침수로 차량 통제.",
	}
}
