package domain

import (
	"fmt"
	"strings"
	"time"
)

// PopulationRange buckets a council by size.
type PopulationRange string

const (
	PopulationSmall  PopulationRange = "small"
	PopulationMedium PopulationRange = "medium"
	PopulationLarge  PopulationRange = "large"
)

// Regions maps region keys to display names.
var Regions = map[string]string{
	"north_east":       "North East England",
	"north_west":       "North West England",
	"yorkshire":        "Yorkshire and the Humber",
	"east_midlands":    "East Midlands",
	"west_midlands":    "West Midlands",
	"east":             "East of England",
	"london":           "London",
	"south_east":       "South East England",
	"south_west":       "South West England",
	"wales":            "Wales",
	"scotland":         "Scotland",
	"northern_ireland": "Northern Ireland",
}

// Themes maps theme keys to descriptions.
var Themes = map[string]string{
	"coastal_tourism":     "Coastal tourism destination",
	"industrial_heritage": "Industrial heritage town",
	"market_town":         "Historic market town",
	"rural_agricultural":  "Rural agricultural district",
	"university_city":     "University city",
	"commuter_belt":       "Commuter belt suburb",
	"mining_legacy":       "Former mining community",
	"cathedral_city":      "Cathedral city",
}

// PopulationBounds gives the inclusive estimate range for each population bucket.
var PopulationBounds = map[PopulationRange][2]int{
	PopulationSmall:  {15000, 40000},
	PopulationMedium: {40000, 120000},
	PopulationLarge:  {120000, 400000},
}

// CouncilIdentity is the parameter record every template is rendered against.
type CouncilIdentity struct {
	Name               string          `json:"name"`
	RegionKey          string          `json:"region_key"`
	ThemeKey           string          `json:"theme_key"`
	PopulationRange    PopulationRange `json:"population_range"`
	PopulationEstimate int             `json:"population_estimate"`
	FlavourKeywords    []string        `json:"flavour_keywords"`
	Motto              string          `json:"motto"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

// DefaultIdentity returns the fallback identity used when generation is unavailable.
func DefaultIdentity() *CouncilIdentity {
	return &CouncilIdentity{
		Name:               "Westbridge District Council",
		RegionKey:          "east_midlands",
		ThemeKey:           "market_town",
		PopulationRange:    PopulationMedium,
		PopulationEstimate: 45000,
		FlavourKeywords: []string{
			"market square",
			"river crossing",
			"historic bridges",
			"wool trade",
			"ancient charter",
		},
		Motto:       "Service with Pride",
		GeneratedAt: time.Now(),
	}
}

// RegionName returns the display name for the identity's region.
func (c *CouncilIdentity) RegionName() string {
	if name, ok := Regions[c.RegionKey]; ok {
		return name
	}
	return c.RegionKey
}

// ThemeDescription returns the description for the identity's theme.
func (c *CouncilIdentity) ThemeDescription() string {
	if desc, ok := Themes[c.ThemeKey]; ok {
		return desc
	}
	return c.ThemeKey
}

// PopulationDisplay formats the population estimate with thousands separators.
func (c *CouncilIdentity) PopulationDisplay() string {
	n := c.PopulationEstimate
	if n < 0 {
		n = 0
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validate checks that the identity refers to known regions and themes.
func (c *CouncilIdentity) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("identity name is required")
	}
	if _, ok := Regions[c.RegionKey]; !ok {
		return fmt.Errorf("unknown region %q", c.RegionKey)
	}
	if _, ok := Themes[c.ThemeKey]; !ok {
		return fmt.Errorf("unknown theme %q", c.ThemeKey)
	}
	if _, ok := PopulationBounds[c.PopulationRange]; !ok {
		return fmt.Errorf("unknown population range %q", c.PopulationRange)
	}
	return nil
}

// TemplateVars returns the substitution table used by content and image templates.
func (c *CouncilIdentity) TemplateVars() map[string]string {
	return map[string]string{
		"council_name":       c.Name,
		"region_name":        c.RegionName(),
		"region_key":         c.RegionKey,
		"theme_description":  c.ThemeDescription(),
		"theme_key":          c.ThemeKey,
		"population":         fmt.Sprintf("%d", c.PopulationEstimate),
		"population_display": c.PopulationDisplay(),
		"flavour_keywords":   strings.Join(c.FlavourKeywords, ", "),
		"motto":              c.Motto,
	}
}
