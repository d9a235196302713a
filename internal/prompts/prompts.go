package prompts

// ============================================================================
// Content Generation Prompts
// ============================================================================

// ContentSystemPrompt frames every content generation request.
const ContentSystemPrompt = `You write web content for a fictional UK local council website.

Rules:
- Use plain English following GOV.UK style: short sentences, active voice, no jargon.
- Everything you write is about the fictional council named in the request. Never mention real councils.
- Do not include images, image URLs or placeholder links in the body.
- Body HTML may use only <p>, <h2>, <h3>, <ul>, <ol>, <li>, <strong>, <em> and <a>.
- Respond with a single JSON object and nothing else.`

// ============================================================================
// Identity Generation Prompts
// ============================================================================

// IdentitySystemPrompt frames the council identity request.
const IdentitySystemPrompt = `You invent believable but fictional UK local councils.
Respond with a single JSON object and nothing else.`

// IdentityUserPrompt is formatted with the region name, theme description and population estimate.
const IdentityUserPrompt = `Invent a fictional council in %s.
The area is best described as: %s.
Its population is roughly %s.

Return JSON with exactly these keys:
{"name": "<council name ending in Council>", "motto": "<short civic motto>", "flavour_keywords": ["<5 distinctive local features>"]}`
