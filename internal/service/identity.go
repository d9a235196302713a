package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
	"github.com/timmy/councilgen/internal/prompts"
)

// IdentityOptions pins parts of a generated identity. Empty fields are chosen at random.
type IdentityOptions struct {
	Region     string
	Theme      string
	Population domain.PopulationRange
}

// IdentityGenerator invents the council identity every template is rendered against.
type IdentityGenerator struct {
	text TextGenerator
	rng  *rand.Rand
	now  func() time.Time
}

// NewIdentityGenerator creates an IdentityGenerator. A nil rng uses a time-seeded source.
func NewIdentityGenerator(text TextGenerator, rng *rand.Rand) *IdentityGenerator {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &IdentityGenerator{text: text, rng: rng, now: time.Now}
}

func (g *IdentityGenerator) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "identity")
}

type identityResponse struct {
	Name            string   `json:"name"`
	Motto           string   `json:"motto"`
	FlavourKeywords []string `json:"flavour_keywords"`
}

// Generate builds a new identity. Invalid option keys are an error. When the
// text backend fails or returns unusable output, the default identity is used
// with the chosen region, theme and population.
func (g *IdentityGenerator) Generate(ctx context.Context, opts IdentityOptions) (*domain.CouncilIdentity, error) {
	ctx = logger.SetPhase(ctx, string(domain.PhaseIdentity))

	region, err := g.pick(opts.Region, domain.Regions, "region")
	if err != nil {
		return nil, err
	}
	theme, err := g.pick(opts.Theme, domain.Themes, "theme")
	if err != nil {
		return nil, err
	}
	population := opts.Population
	if population == "" {
		ranges := []domain.PopulationRange{domain.PopulationSmall, domain.PopulationMedium, domain.PopulationLarge}
		population = ranges[g.rng.IntN(len(ranges))]
	}
	bounds, ok := domain.PopulationBounds[population]
	if !ok {
		return nil, fmt.Errorf("unknown population range %q", population)
	}
	estimate := bounds[0] + g.rng.IntN(bounds[1]-bounds[0]+1)
	// round to the nearest hundred
	estimate = (estimate + 50) / 100 * 100

	identity := &domain.CouncilIdentity{
		RegionKey:          region,
		ThemeKey:           theme,
		PopulationRange:    population,
		PopulationEstimate: estimate,
		GeneratedAt:        g.now(),
	}

	resp, err := g.request(ctx, identity)
	if err != nil {
		g.log(ctx).WithError(err).Warn("Identity generation failed, using default identity")
		fallback := domain.DefaultIdentity()
		identity.Name = fallback.Name
		identity.Motto = fallback.Motto
		identity.FlavourKeywords = fallback.FlavourKeywords
		return identity, nil
	}

	identity.Name = resp.Name
	identity.Motto = resp.Motto
	identity.FlavourKeywords = resp.FlavourKeywords

	g.log(ctx).WithFields(logger.Fields{
		"council":    identity.Name,
		"region":     identity.RegionKey,
		"theme":      identity.ThemeKey,
		"population": identity.PopulationEstimate,
	}).Info("Council identity generated")
	return identity, nil
}

func (g *IdentityGenerator) request(ctx context.Context, identity *domain.CouncilIdentity) (*identityResponse, error) {
	if g.text == nil {
		return nil, fmt.Errorf("no text generator configured")
	}
	prompt := fmt.Sprintf(prompts.IdentityUserPrompt, identity.RegionName(), identity.ThemeDescription(), identity.PopulationDisplay())
	text, err := g.text.Generate(ctx, prompts.IdentitySystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		return nil, ErrNoJSON
	}
	var resp identityResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	resp.Name = strings.TrimSpace(resp.Name)
	if resp.Name == "" {
		return nil, fmt.Errorf("identity response has no name")
	}
	keywords := resp.FlavourKeywords[:0]
	for _, k := range resp.FlavourKeywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	resp.FlavourKeywords = keywords
	return &resp, nil
}

// pick validates key against options, or chooses one at random when key is empty.
func (g *IdentityGenerator) pick(key string, options map[string]string, what string) (string, error) {
	if key != "" {
		if _, ok := options[key]; !ok {
			return "", fmt.Errorf("unknown %s %q", what, key)
		}
		return key, nil
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[g.rng.IntN(len(keys))], nil
}
