package domain

import (
	"fmt"
	"strings"
)

// ContentKind tags the kind of content a specification produces.
// Only the content sink interprets it.
type ContentKind string

const (
	ContentKindPage      ContentKind = "page"
	ContentKindService   ContentKind = "localgov_services_page"
	ContentKindGuide     ContentKind = "localgov_guides_page"
	ContentKindDirectory ContentKind = "localgov_directories_page"
	ContentKindNews      ContentKind = "localgov_news_article"
)

// DefaultOrder is used when a specification declares no order hint.
const DefaultOrder = 100

// ContentSpecification describes one content item to generate.
type ContentSpecification struct {
	ID            string               `json:"id"`
	Kind          ContentKind          `json:"content_type"`
	TitleTemplate string               `json:"title_template"`
	Prompt        string               `json:"prompt"`
	Images        []ImageSpecification `json:"images,omitempty"`
	// Fields maps a sink field name to the key of the generated JSON that fills it.
	Fields       map[string]string `json:"fields,omitempty"`
	Order        int               `json:"generation_order"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RenderedContent is a specification rendered against a concrete identity.
type RenderedContent struct {
	SpecID string
	Kind   ContentKind
	Title  string
	Prompt string
}

// Render substitutes identity values into the title and prompt templates.
func (s *ContentSpecification) Render(identity *CouncilIdentity) (*RenderedContent, error) {
	vars := identity.TemplateVars()

	title, err := RenderTemplate(s.TitleTemplate, vars)
	if err != nil {
		return nil, fmt.Errorf("render title for %s: %w", s.ID, err)
	}
	prompt, err := RenderTemplate(s.Prompt, vars)
	if err != nil {
		return nil, fmt.Errorf("render prompt for %s: %w", s.ID, err)
	}

	return &RenderedContent{
		SpecID: s.ID,
		Kind:   s.Kind,
		Title:  title,
		Prompt: prompt,
	}, nil
}

// RenderImages renders every image requirement, binding each to this specification.
// An image whose template cannot be rendered is returned in the error slice and skipped.
func (s *ContentSpecification) RenderImages(identity *CouncilIdentity) ([]ImageSpecification, []error) {
	vars := identity.TemplateVars()
	rendered := make([]ImageSpecification, 0, len(s.Images))
	var errs []error

	for i, img := range s.Images {
		r, err := img.Render(vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("image %d of %s: %w", i, s.ID, err))
			continue
		}
		r.ContentSpecID = s.ID
		rendered = append(rendered, *r)
	}
	return rendered, errs
}

// DependenciesSatisfied reports whether every dependency is in completed.
func (s *ContentSpecification) DependenciesSatisfied(completed map[string]bool) bool {
	for _, dep := range s.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// IDWords turns "service-bin-collection" into "Service Bin Collection".
func (s *ContentSpecification) IDWords() string {
	parts := strings.FieldsFunc(s.ID, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
