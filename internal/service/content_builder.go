package service

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/timmy/councilgen/internal/domain"
)

const maxSummaryLength = 200

var (
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	stepPrefixPattern = regexp.MustCompile(`(?i)^Step\s+\d+[:.]\s*`)
	firstSentence     = regexp.MustCompile(`^([^.!?]+[.!?])`)
	anyTagPattern     = regexp.MustCompile(`<[^>]*>`)
	tagPattern        = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)
	emptyFigure       = regexp.MustCompile(`(?i)<figure[^>]*>\s*</figure>`)
	emptyParagraphs   = regexp.MustCompile(`(<p>\s*</p>\s*){2,}`)

	// img tags the generator invents: placeholders, stock hosts, plain http and relative paths
	brokenImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<img[^>]*src=["'][^"']*(placeholder|example\.com|lorem|unsplash|picsum|stock)[^"']*["'][^>]*/?>`),
		regexp.MustCompile(`(?i)<img[^>]*src=["']/?images/[^"']*["'][^>]*/?>`),
		regexp.MustCompile(`(?i)<img[^>]*src=["']http://[^"']*["'][^>]*/?>`),
	}

	allowedStepTags = map[string]bool{
		"p": true, "br": true, "ul": true, "ol": true, "li": true,
		"strong": true, "em": true, "a": true, "h4": true, "h5": true, "span": true,
	}
)

// parseContentResponse extracts the outermost JSON object from a text response.
func parseContentResponse(text string) (map[string]interface{}, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, ErrNoJSON
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(match), &data); err != nil {
		return nil, fmt.Errorf("parse response JSON: %w", err)
	}
	return data, nil
}

// buildDraft maps generated data onto a content draft, falling back to
// template values where the response is missing fields.
func buildDraft(spec domain.ContentSpecification, rendered *domain.RenderedContent, identity *domain.CouncilIdentity, data map[string]interface{}) domain.ContentDraft {
	title := stringValue(data["title"])
	if title == "" {
		title = rendered.Title
	}
	if title == "" {
		title = fmt.Sprintf("%s - %s", spec.IDWords(), identity.Name)
	}

	body := ""
	if raw, ok := data["body"]; ok {
		body = prepareBody(raw)
	}

	summary := stringValue(data["summary"])
	if summary == "" {
		summary = summaryFromBody(body)
	}
	if summary == "" {
		summary = fmt.Sprintf("Information about %s from %s.", title, identity.Name)
	}

	fields := make(map[string]interface{}, len(spec.Fields))
	for field, key := range spec.Fields {
		switch key {
		case "title":
			fields[field] = title
		case "summary":
			fields[field] = summary
		case "body":
			fields[field] = body
		default:
			if v, ok := data[key]; ok {
				fields[field] = v
			}
		}
	}

	return domain.ContentDraft{
		SpecID:  spec.ID,
		Kind:    spec.Kind,
		Title:   title,
		Summary: summary,
		Body:    body,
		Fields:  fields,
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// prepareBody renders a body value as HTML with invented images removed.
func prepareBody(v interface{}) string {
	var body string
	switch val := v.(type) {
	case string:
		body = val
	case []interface{}:
		if looksLikeSteps(val) {
			body = stepsToHTML(val)
		} else {
			body = prettyJSON(val)
		}
	case nil:
		body = ""
	default:
		body = prettyJSON(val)
	}
	return sanitizeGeneratedHTML(body)
}

func prettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func looksLikeSteps(items []interface{}) bool {
	if len(items) == 0 {
		return false
	}
	first, ok := items[0].(map[string]interface{})
	if !ok {
		return false
	}
	for _, key := range []string{"title", "content", "step_number", "step"} {
		if _, ok := first[key]; ok {
			return true
		}
	}
	return false
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}

func stepsToHTML(steps []interface{}) string {
	var b strings.Builder
	b.WriteString(`<div class="guide-steps">`)
	for i, raw := range steps {
		step, ok := raw.(map[string]interface{})
		if !ok {
			step = map[string]interface{}{"content": fmt.Sprint(raw)}
		}
		number := firstString(step, "step_number", "number")
		if number == "" {
			number = fmt.Sprintf("%d", i+1)
		}
		title := firstString(step, "title", "step")
		if title == "" {
			title = "Step " + number
		}
		title = stepPrefixPattern.ReplaceAllString(title, "")
		content := firstString(step, "content", "description", "body")

		fmt.Fprintf(&b, `<div class="guide-step"><h3 class="guide-step__title">Step %s: %s</h3><div class="guide-step__content">%s</div></div>`,
			number, html.EscapeString(title), sanitizeStepContent(content))
	}
	b.WriteString(`</div>`)
	return b.String()
}

// sanitizeStepContent keeps a small set of inline tags, or wraps plain text in paragraphs.
func sanitizeStepContent(content string) string {
	if strings.Contains(content, "<") {
		return tagPattern.ReplaceAllStringFunc(content, func(tag string) string {
			name := strings.ToLower(tagPattern.FindStringSubmatch(tag)[1])
			if allowedStepTags[name] {
				return tag
			}
			return ""
		})
	}

	var paragraphs []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, html.EscapeString(p))
		}
	}
	if len(paragraphs) == 0 {
		return "<p></p>"
	}
	return "<p>" + strings.Join(paragraphs, "</p><p>") + "</p>"
}

// sanitizeGeneratedHTML removes invented image references and the empty wrappers they leave.
func sanitizeGeneratedHTML(body string) string {
	for _, p := range brokenImagePatterns {
		body = p.ReplaceAllString(body, "")
	}
	body = emptyFigure.ReplaceAllString(body, "")
	return emptyParagraphs.ReplaceAllString(body, "<p></p>")
}

// summaryFromBody returns the first sentence of the body text, capped at maxSummaryLength runes.
func summaryFromBody(body string) string {
	text := strings.TrimSpace(html.UnescapeString(anyTagPattern.ReplaceAllString(body, " ")))
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	if m := firstSentence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	runes := []rune(text)
	if len(runes) > maxSummaryLength {
		text = strings.TrimSpace(string(runes[:maxSummaryLength-3])) + "..."
	}
	return text
}
