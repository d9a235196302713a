package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ImageType is the role an image plays on a content item.
type ImageType string

const (
	ImageTypeHero     ImageType = "hero"
	ImageTypeHeadshot ImageType = "headshot"
	ImageTypeLocation ImageType = "location"
	ImageTypeIcon     ImageType = "icon"
	ImageTypeDocument ImageType = "document"
)

// IsValid reports whether t is a known image type.
func (t ImageType) IsValid() bool {
	switch t {
	case ImageTypeHero, ImageTypeHeadshot, ImageTypeLocation, ImageTypeIcon, ImageTypeDocument:
		return true
	}
	return false
}

// ImageStyle is the rendering style requested from the image backend.
type ImageStyle string

const (
	ImageStylePhoto        ImageStyle = "photo"
	ImageStyleIllustration ImageStyle = "illustration"
	ImageStyleIcon         ImageStyle = "icon"
)

// DefaultImageField is the content field an image is attached to when none is given.
const DefaultImageField = "field_hero_image"

// Dimensions is a "WxH" size such as "1200x630".
type Dimensions string

// DefaultDimensions is used when an image requirement declares no size.
const DefaultDimensions Dimensions = "1200x630"

// Parse splits the dimensions into width and height.
func (d Dimensions) Parse() (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(string(d))), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid dimensions %q", string(d))
	}
	width, err = strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", string(d))
	}
	height, err = strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", string(d))
	}
	return width, height, nil
}

// Width returns the parsed width, or 0 when the dimensions are invalid.
func (d Dimensions) Width() int {
	w, _, _ := d.Parse()
	return w
}

// Height returns the parsed height, or 0 when the dimensions are invalid.
func (d Dimensions) Height() int {
	_, h, _ := d.Parse()
	return h
}

// AspectRatio returns width divided by height, or 0 when invalid.
func (d Dimensions) AspectRatio() float64 {
	w, h, err := d.Parse()
	if err != nil {
		return 0
	}
	return float64(w) / float64(h)
}

// ImageSpecification is one image requirement attached to a content item.
type ImageSpecification struct {
	Type       ImageType  `yaml:"type" json:"type"`
	Prompt     string     `yaml:"prompt" json:"prompt"`
	Dimensions Dimensions `yaml:"dimensions" json:"dimensions"`
	Style      ImageStyle `yaml:"style" json:"style"`
	FieldName  string     `yaml:"field_name" json:"field_name"`
	// ContentSpecID is set when the requirement is rendered for its owning specification.
	ContentSpecID string `yaml:"-" json:"content_spec_id,omitempty"`
}

// WithDefaults fills in type, size, style and target field.
func (s ImageSpecification) WithDefaults() ImageSpecification {
	if s.Type == "" {
		s.Type = ImageTypeHero
	}
	if s.Dimensions == "" {
		s.Dimensions = DefaultDimensions
	}
	if s.Style == "" {
		s.Style = ImageStylePhoto
	}
	if s.FieldName == "" {
		s.FieldName = DefaultImageField
	}
	return s
}

// Render substitutes identity values into the prompt and applies defaults.
func (s ImageSpecification) Render(vars map[string]string) (*ImageSpecification, error) {
	prompt, err := RenderTemplate(s.Prompt, vars)
	if err != nil {
		return nil, err
	}
	out := s.WithDefaults()
	out.Prompt = prompt
	if _, _, err := out.Dimensions.Parse(); err != nil {
		return nil, err
	}
	return &out, nil
}

// FullPrompt is the prompt sent to the image backend, with the style appended.
func (s ImageSpecification) FullPrompt() string {
	switch s.Style {
	case ImageStyleIllustration:
		return s.Prompt + ". Flat vector illustration, clean lines, public sector website style."
	case ImageStyleIcon:
		return s.Prompt + ". Simple icon, solid background, minimal detail."
	default:
		return s.Prompt + ". Photorealistic, natural light, UK setting."
	}
}
