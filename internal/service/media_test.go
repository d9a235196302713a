package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/repository"
	"github.com/timmy/councilgen/internal/storage"
)

func newMediaService(t *testing.T) (*MediaService, *repository.MediaRepository) {
	t.Helper()
	dir := t.TempDir()
	db, err := gorm.Open(puresqlite.Open(filepath.Join(dir, "media.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := storage.NewLocalStorage(filepath.Join(dir, "objects"), "http://localhost:8080/media")
	require.NoError(t, err)
	repo := repository.NewMediaRepository(db)
	return NewMediaService(store, repo, "/generated/"), repo
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMediaServiceCreate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMediaService(t)
	fingerprint := strings.Repeat("ab", 32)

	id, err := svc.Create(ctx, domain.MediaUpload{
		Data:        pngBytes(t, 32, 16),
		Dimensions:  "1200x630",
		SpecID:      "service-bin-collection",
		Fingerprint: fingerprint,
		ImageType:   domain.ImageTypeHero,
		CouncilName: "Westbridge District Council",
	})
	require.NoError(t, err)

	media, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hero image - Westbridge District Council", media.Name)
	assert.Equal(t, "Bin Collection - Westbridge District Council", media.AltText)
	assert.Equal(t, 32, media.Width)
	assert.Equal(t, 16, media.Height)
	assert.Equal(t, "png", media.Format)
	assert.Equal(t, "image/png", media.MimeType)
	assert.True(t, strings.HasPrefix(media.StorageKey, "generated/"+media.MD5Hash[:2]+"/"))
	assert.True(t, strings.HasSuffix(media.StorageKey, "generated-service-bin-collection-abababab.png"))
	assert.Equal(t, "http://localhost:8080/media/"+media.StorageKey, media.URL)

	// the same bytes for the same request are not stored twice
	again, err := svc.Create(ctx, domain.MediaUpload{
		Data:        pngBytes(t, 32, 16),
		Fingerprint: fingerprint,
		SpecID:      "service-bin-collection",
	})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMediaServiceUndecodableImage(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMediaService(t)

	id, err := svc.Create(ctx, domain.MediaUpload{Data: []byte("not an image"), Dimensions: "800x600", SpecID: "news-fete"})
	require.NoError(t, err)
	media, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 800, media.Width)
	assert.Equal(t, 600, media.Height)
	assert.Equal(t, "png", media.Format)

	_, err = svc.Create(ctx, domain.MediaUpload{})
	assert.Error(t, err)
}

func TestMediaNaming(t *testing.T) {
	testCases := []struct {
		name     string
		got      string
		expected string
	}{
		{"file name", MediaFileName("Guide: Moving Home", "0123456789abcdef", "jpeg"), "generated-guide-moving-home-01234567.jpeg"},
		{"file name without fingerprint", MediaFileName("", "", "png"), "generated-image.png"},
		{"alt text strips kind", AltText("service-council-tax", "Testbury Council"), "Council Tax - Testbury Council"},
		{"alt text keeps single word", AltText("homepage", ""), "Homepage"},
		{"alt text nested prefixes", AltText("page_news_summer-fete", "X"), "Summer Fete - X"},
		{"media name default type", MediaName("", "Testbury Council"), "Hero image - Testbury Council"},
		{"media name icon", MediaName(domain.ImageTypeIcon, ""), "Icon image"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.got)
		})
	}
}
