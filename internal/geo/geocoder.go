// Package geo turns addresses and place names into coordinates and region codes.
package geo

import (
	"context"
	"strings"

	"github.com/ppiankov/newsflow/internal/model"
)

// Geocoder resolves free text to locations. "Not found" is an empty slice, never an error;
// errors are reserved for transport and upstream failures.
type Geocoder interface {
	GeocodeByAddress(ctx context.Context, address string) ([]model.Location, error)
	GeocodeByKeyword(ctx context.Context, keyword string) ([]model.Location, error)
}

// Region is one administrative subdivision reported for a coordinate
type Region struct {
	Type       model.RegionType
	Code       string
	Depth1Name string
	Depth2Name string
	Depth3Name string
}

// depth counts the populated subdivision levels
func (r Region) depth() int {
	n := 0
	for _, name := range []string{r.Depth1Name, r.Depth2Name, r.Depth3Name} {
		if strings.TrimSpace(name) != "" {
			n++
		}
	}
	return n
}

// PreferRegion picks between the legal and administrative subdivisions of one coordinate.
// The more specific one wins; on a tie the administrative code is used. ok is false when
// neither is present.
func PreferRegion(legal, administrative *Region) (Region, bool) {
	switch {
	case legal == nil && administrative == nil:
		return Region{}, false
	case legal == nil:
		return *administrative, true
	case administrative == nil:
		return *legal, true
	case legal.depth() > administrative.depth():
		return *legal, true
	default:
		return *administrative, true
	}
}

// BroadenQueries returns the query followed by progressively shorter prefixes,
// dropping one trailing token at a time and never going below minTokens tokens
func BroadenQueries(query string, minTokens int) []string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil
	}
	if minTokens < 1 {
		minTokens = 1
	}

	queries := []string{strings.Join(tokens, " ")}
	for n := len(tokens) - 1; n >= minTokens; n-- {
		queries = append(queries, strings.Join(tokens[:n], " "))
	}
	return queries
}
