package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/newsflow/internal/geo"
	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/model"
	"github.com/ppiankov/newsflow/internal/retry"
)

// LocationExtractor finds the places an article reports on and geocodes them.
// Candidates come from two prompt passes: extraction, then validation against the text.
type LocationExtractor struct {
	prompts  PromptExecutor
	resolver *LocationResolver
	logger   *slog.Logger
}

// NewLocationExtractor creates a new location extractor
func NewLocationExtractor(prompts PromptExecutor, resolver *LocationResolver, logger *slog.Logger) *LocationExtractor {
	return &LocationExtractor{
		prompts:  prompts,
		resolver: resolver,
		logger:   logging.OrDefault(logger).With("component", "location_extractor"),
	}
}

type locationOutput struct {
	Locations []model.ExtractedLocation `json:"locations"`
}

type locationValidateInput struct {
	articleInput
	Candidates []model.ExtractedLocation `json:"candidates"`
}

// Extract returns the resolved locations in candidate order. No candidates means no geocoding.
func (e *LocationExtractor) Extract(ctx context.Context, articleID string, article model.RefinedArticle) ([]model.Location, error) {
	input := newArticleInput(article)

	var extracted locationOutput
	if _, err := e.prompts.Execute(ctx, llm.PromptLocationExtract, input, &extracted); err != nil {
		return nil, fmt.Errorf("location extract: %w", err)
	}
	candidates := normalizeCandidates(extracted.Locations)
	if len(candidates) == 0 {
		return []model.Location{}, nil
	}

	var validated locationOutput
	if _, err := e.prompts.Execute(ctx, llm.PromptLocationValidate, locationValidateInput{
		articleInput: input,
		Candidates:   candidates,
	}, &validated); err != nil {
		return nil, fmt.Errorf("location validate: %w", err)
	}
	candidates = normalizeCandidates(validated.Locations)
	if len(candidates) == 0 {
		e.logger.Debug("no location survived validation", "article_id", articleID)
		return []model.Location{}, nil
	}

	return e.resolver.Resolve(ctx, articleID, candidates)
}

// normalizeCandidates trims names, drops blanks and duplicates, and treats unknown types as unresolvable
func normalizeCandidates(in []model.ExtractedLocation) []model.ExtractedLocation {
	seen := make(map[model.ExtractedLocation]bool, len(in))
	out := make([]model.ExtractedLocation, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		c.Type = model.LocationType(strings.ToUpper(strings.TrimSpace(string(c.Type))))
		if c.Name == "" {
			continue
		}
		if !c.Type.Valid() {
			c.Type = model.LocationTypeUnresolvable
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// LocationResolver geocodes validated candidates concurrently. A candidate that cannot be
// geocoded, for any reason, becomes an unresolved location and never fails its siblings.
type LocationResolver struct {
	geocoder    geo.Geocoder
	policy      retry.Policy
	concurrency int
	logger      *slog.Logger
}

// NewLocationResolver creates a resolver. policy bounds the attempts per candidate.
func NewLocationResolver(geocoder geo.Geocoder, policy retry.Policy, concurrency int, logger *slog.Logger) *LocationResolver {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &LocationResolver{
		geocoder:    geocoder,
		policy:      policy,
		concurrency: concurrency,
		logger:      logging.OrDefault(logger).With("component", "location_resolver"),
	}
}

// Resolve geocodes every candidate and flattens the results in candidate order.
// It fails only when ctx is done.
func (r *LocationResolver) Resolve(ctx context.Context, articleID string, candidates []model.ExtractedLocation) ([]model.Location, error) {
	if len(candidates) == 0 {
		return []model.Location{}, nil
	}

	perCandidate := make([][]model.Location, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			perCandidate[i] = r.resolveOne(gctx, articleID, c)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve locations: %w", err)
	}

	locations := []model.Location{}
	for _, locs := range perCandidate {
		locations = append(locations, locs...)
	}
	return locations, nil
}

func (r *LocationResolver) resolveOne(ctx context.Context, articleID string, c model.ExtractedLocation) []model.Location {
	if c.Type == model.LocationTypeUnresolvable {
		return []model.Location{model.UnresolvedLocation(c.Name)}
	}

	onRetry := func(attempt int, delay time.Duration, err error) {
		r.logger.Debug("retrying geocode",
			"article_id", articleID,
			"location", c.Name,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	locations, err := retry.Execute(ctx, r.policy, onRetry, func(ctx context.Context) ([]model.Location, error) {
		return r.geocode(ctx, c)
	})
	if err != nil {
		r.logger.Warn("geocoding failed, keeping location unresolved",
			"article_id", articleID,
			"location", c.Name,
			"type", c.Type,
			"error", err)
		return []model.Location{model.UnresolvedLocation(c.Name)}
	}
	if len(locations) == 0 {
		return []model.Location{model.UnresolvedLocation(c.Name)}
	}
	return locations
}

// geocode dispatches on the candidate type. Landmarks fall back to an address search.
func (r *LocationResolver) geocode(ctx context.Context, c model.ExtractedLocation) ([]model.Location, error) {
	switch c.Type {
	case model.LocationTypeAddress:
		return r.geocoder.GeocodeByAddress(ctx, c.Name)
	case model.LocationTypeLandmark:
		locations, err := r.geocoder.GeocodeByKeyword(ctx, c.Name)
		if err != nil || len(locations) > 0 {
			return locations, err
		}
		return r.geocoder.GeocodeByAddress(ctx, c.Name)
	default:
		return []model.Location{}, nil
	}
}
