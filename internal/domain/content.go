package domain

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// ContentItem is a generated and persisted content item.
type ContentItem struct {
	ID        string            `gorm:"type:text;primaryKey" json:"id"`
	SpecID    string            `gorm:"type:text;not null;index:idx_content_spec" json:"spec_id"`
	Kind      ContentKind       `gorm:"type:text;not null;index:idx_content_kind" json:"kind"`
	Title     string            `gorm:"type:text;not null" json:"title"`
	Summary   string            `gorm:"type:text" json:"summary"`
	Body      string            `gorm:"type:text" json:"body"`
	Fields    datatypes.JSONMap `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (ContentItem) TableName() string {
	return "content_items"
}

// ContentDraft is what the orchestrator hands to the content sink.
type ContentDraft struct {
	SpecID  string
	Kind    ContentKind
	Title   string
	Summary string
	Body    string
	Fields  map[string]interface{}
}

// ContentMedia attaches a media item to a named field of a content item.
type ContentMedia struct {
	ContentID string    `gorm:"type:text;primaryKey" json:"content_id"`
	FieldName string    `gorm:"type:text;primaryKey" json:"field_name"`
	MediaID   string    `gorm:"type:text;not null;index:idx_content_media_media" json:"media_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ContentMedia) TableName() string {
	return "content_media"
}

// MediaItem is a persisted generated image.
type MediaItem struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	AltText     string    `gorm:"type:text" json:"alt_text"`
	SpecID      string    `gorm:"type:text;index:idx_media_spec" json:"spec_id"`
	Fingerprint string    `gorm:"type:text;index:idx_media_fingerprint" json:"fingerprint"`
	StorageKey  string    `gorm:"type:text;not null" json:"storage_key"`
	URL         string    `gorm:"type:text" json:"url"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Format      string    `gorm:"type:text" json:"format"`
	MimeType    string    `gorm:"type:text" json:"mime_type"`
	FileSize    int64     `json:"file_size"`
	MD5Hash     string    `gorm:"type:text" json:"md5_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

func (MediaItem) TableName() string {
	return "media_items"
}

// MediaUpload is what the batch processor hands to the media sink.
type MediaUpload struct {
	Data        []byte
	Dimensions  Dimensions
	SpecID      string
	Fingerprint string
	ImageType   ImageType
	CouncilName string
}

// StateRecord is one key/value entry of pipeline state.
type StateRecord struct {
	Key       string         `gorm:"column:state_key;type:text;primaryKey" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (StateRecord) TableName() string {
	return "generation_state"
}

// ContentLedger tracks per-spec outcomes across runs so a resumed run can skip finished work.
type ContentLedger struct {
	Completed map[string]string `json:"completed"`
	Failed    map[string]string `json:"failed"`
	// Uncollected holds specs whose content exists but whose images may not be queued.
	Uncollected map[string]bool `json:"uncollected,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewContentLedger returns an empty ledger.
func NewContentLedger() *ContentLedger {
	return &ContentLedger{
		Completed: make(map[string]string),
		Failed:    make(map[string]string),
	}
}

// RecordResult stores the outcome of a spec attempt.
func (l *ContentLedger) RecordResult(r ContentGenerationResult, now time.Time) {
	if l.Completed == nil {
		l.Completed = make(map[string]string)
	}
	if l.Failed == nil {
		l.Failed = make(map[string]string)
	}
	if r.Success {
		l.Completed[r.SpecID] = r.ContentID
		delete(l.Failed, r.SpecID)
	} else {
		l.Failed[r.SpecID] = r.Error
	}
	l.UpdatedAt = now
}

// RecordCreated stores a created content item whose images are still to be queued.
func (l *ContentLedger) RecordCreated(specID, contentID string, now time.Time) {
	if l.Completed == nil {
		l.Completed = make(map[string]string)
	}
	if l.Uncollected == nil {
		l.Uncollected = make(map[string]bool)
	}
	l.Completed[specID] = contentID
	l.Uncollected[specID] = true
	delete(l.Failed, specID)
	l.UpdatedAt = now
}

// MarkCollected records that the images of specID are queued.
func (l *ContentLedger) MarkCollected(specID string, now time.Time) {
	delete(l.Uncollected, specID)
	l.UpdatedAt = now
}

// UncollectedIDs lists, sorted, the specs whose images may not be queued.
func (l *ContentLedger) UncollectedIDs() []string {
	ids := make([]string, 0, len(l.Uncollected))
	for id := range l.Uncollected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CompletedIDs lists the specs with a persisted content item.
func (l *ContentLedger) CompletedIDs() []string {
	ids := make([]string, 0, len(l.Completed))
	for id := range l.Completed {
		ids = append(ids, id)
	}
	return ids
}

// ClearFailures forgets failed attempts so they run again.
func (l *ContentLedger) ClearFailures(now time.Time) []string {
	ids := make([]string, 0, len(l.Failed))
	for id := range l.Failed {
		ids = append(ids, id)
	}
	l.Failed = make(map[string]string)
	l.UpdatedAt = now
	return ids
}
