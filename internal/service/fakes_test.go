package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/timmy/councilgen/internal/domain"
)

// memStore is a StateStore that round-trips values through JSON and rejects
// cancelled contexts like the database store does.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	saveErr error
	keyErr  map[string]error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), keyErr: make(map[string]error)}
}

func (s *memStore) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *memStore) Save(ctx context.Context, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := s.keyErr[key]; err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.data[key] = raw
	s.saves++
	return nil
}

func (s *memStore) failKey(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyErr[key] = err
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type staticCatalog struct {
	specs []domain.ContentSpecification
	err   error
}

func (c *staticCatalog) LoadAll(context.Context) ([]domain.ContentSpecification, error) {
	return c.specs, c.err
}

// fakeText answers every prompt with a JSON body unless the prompt contains a failure marker.
type fakeText struct {
	mu      sync.Mutex
	prompts []string
	fail    map[string]error
	reply   func(prompt string) string
}

func newFakeText() *fakeText {
	return &fakeText{fail: make(map[string]error)}
}

func (f *fakeText) Generate(_ context.Context, _ string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	for marker, err := range f.fail {
		if strings.Contains(prompt, marker) {
			return "", err
		}
	}
	if f.reply != nil {
		return f.reply(prompt), nil
	}
	return `{"title": "", "summary": "Generated.", "body": "<p>Generated body.</p>"}`, nil
}

func (f *fakeText) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// cancellingText cancels the run during the generation call after the first
// allow calls, the way a pause request lands while a request is in flight.
type cancellingText struct {
	cancel context.CancelFunc
	allow  int
	calls  int
}

func (f *cancellingText) Generate(ctx context.Context, _ string, _ string) (string, error) {
	f.calls++
	if f.calls > f.allow {
		f.cancel()
		return "", ctx.Err()
	}
	return `{"body": "<p>Generated body.</p>"}`, nil
}

// blockingText answers the first allow calls and blocks every later call
// until its context is done.
type blockingText struct {
	mu      sync.Mutex
	allow   int
	calls   int
	once    sync.Once
	started chan struct{}
}

func newBlockingText(allow int) *blockingText {
	return &blockingText{allow: allow, started: make(chan struct{})}
}

func (f *blockingText) Generate(ctx context.Context, _ string, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	answer := f.calls <= f.allow
	f.mu.Unlock()
	if answer {
		return `{"body": "<p>Generated body.</p>"}`, nil
	}
	f.once.Do(func() { close(f.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeImages struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newFakeImages() *fakeImages {
	return &fakeImages{fail: make(map[string]error)}
}

func (f *fakeImages) Generate(_ context.Context, prompt string, _ domain.Dimensions, _ domain.ImageStyle) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prompt)
	for marker, err := range f.fail {
		if strings.Contains(prompt, marker) {
			return nil, err
		}
	}
	return []byte("image:" + prompt), nil
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errNotFound = errors.New("not found")

// fakeContent records drafts in creation order and media attached per field.
type fakeContent struct {
	mu        sync.Mutex
	drafts    []domain.ContentDraft
	ids       map[string]string
	attached  map[string]string
	attachErr map[string]error
	createErr error
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		ids:       make(map[string]string),
		attached:  make(map[string]string),
		attachErr: make(map[string]error),
	}
}

func (f *fakeContent) Create(_ context.Context, draft domain.ContentDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := fmt.Sprintf("content-%d", len(f.drafts)+1)
	f.drafts = append(f.drafts, draft)
	f.ids[draft.SpecID] = id
	return id, nil
}

func (f *fakeContent) AttachMedia(_ context.Context, contentID, fieldName, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.attachErr[contentID]; ok {
		return err
	}
	if !strings.HasPrefix(contentID, "content-") {
		return errNotFound
	}
	f.attached[contentID+"/"+fieldName] = mediaID
	return nil
}

func (f *fakeContent) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.drafts))
	for i, d := range f.drafts {
		ids[i] = d.SpecID
	}
	return ids
}

func (f *fakeContent) mediaOf(specID, field string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[f.ids[specID]+"/"+field]
}

// cancellingImages cancels the run during the first image generation call.
type cancellingImages struct {
	cancel context.CancelFunc
	calls  int
}

func (f *cancellingImages) Generate(ctx context.Context, _ string, _ domain.Dimensions, _ domain.ImageStyle) ([]byte, error) {
	f.calls++
	f.cancel()
	return nil, fmt.Errorf("request image: %w", ctx.Err())
}

type fakeMedia struct {
	mu      sync.Mutex
	uploads []domain.MediaUpload
	err     error
}

func (f *fakeMedia) Create(_ context.Context, upload domain.MediaUpload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, upload)
	return fmt.Sprintf("media-%d", len(f.uploads)), nil
}

func (f *fakeMedia) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// harness wires every component over one memStore.
type harness struct {
	store        *memStore
	catalog      *staticCatalog
	text         *fakeText
	images       *fakeImages
	content      *fakeContent
	media        *fakeMedia
	state        *StateManager
	collector    *Collector
	orchestrator *Orchestrator
	batch        *BatchProcessor
	pipeline     *Pipeline
}

func newHarness(specs ...domain.ContentSpecification) *harness {
	h := &harness{
		store:   newMemStore(),
		catalog: &staticCatalog{specs: specs},
		text:    newFakeText(),
		images:  newFakeImages(),
		content: newFakeContent(),
		media:   &fakeMedia{},
	}
	h.state = NewStateManager(h.store)
	h.collector = NewCollector(h.store)
	h.orchestrator = NewOrchestrator(h.catalog, h.text, h.content, h.collector, h.state, h.store, nil)
	h.batch = NewBatchProcessor(h.images, h.media, h.content, h.collector, h.state, &BatchConfig{})
	h.pipeline = NewPipeline(h.catalog, h.state, NewIdentityGenerator(h.text, nil), h.orchestrator, h.batch, h.collector)
	return h
}

func testIdentity() *domain.CouncilIdentity {
	identity := domain.DefaultIdentity()
	identity.Name = "Testbury Borough Council"
	return identity
}

func spec(id string, order int, deps ...string) domain.ContentSpecification {
	return domain.ContentSpecification{
		ID:            id,
		Kind:          domain.ContentKindPage,
		TitleTemplate: id + " - {{council_name}}",
		Prompt:        "Write " + id + " for {{council_name}}",
		Order:         order,
		Dependencies:  deps,
	}
}

func withImage(s domain.ContentSpecification, prompt string) domain.ContentSpecification {
	s.Images = append(s.Images, domain.ImageSpecification{
		Type:       domain.ImageTypeHero,
		Prompt:     prompt,
		Dimensions: "1200x630",
		Style:      domain.ImageStylePhoto,
	})
	return s
}
