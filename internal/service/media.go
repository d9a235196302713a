package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
	"github.com/timmy/councilgen/internal/repository"
	"github.com/timmy/councilgen/internal/storage"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

	// id prefixes naming the content kind rather than the subject
	kindPrefixes = []string{"service", "guide", "directory", "news", "homepage", "page"}
)

// MediaService persists generated images: bytes to object storage, metadata to the database.
type MediaService struct {
	images storage.ImageStore
	repo   *repository.MediaRepository
	prefix string
}

// NewMediaService creates a new MediaService. Storage keys are placed under prefix.
func NewMediaService(images storage.ImageStore, repo *repository.MediaRepository, prefix string) *MediaService {
	return &MediaService{images: images, repo: repo, prefix: prefix}
}

func (s *MediaService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "media")
}

// Create stores an image and returns its media id. An image already stored for
// the same fingerprint and bytes is returned as-is.
func (s *MediaService) Create(ctx context.Context, upload domain.MediaUpload) (string, error) {
	if len(upload.Data) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	md5Hash := calculateMD5(upload.Data)
	if upload.Fingerprint != "" {
		existing, err := s.repo.GetByFingerprint(ctx, upload.Fingerprint)
		switch {
		case err == nil && existing.MD5Hash == md5Hash:
			s.log(ctx).WithField("media_id", existing.ID).Debug("Image already stored")
			return existing.ID, nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return "", fmt.Errorf("lookup media: %w", err)
		}
	}

	width, height, format, err := getImageInfo(upload.Data)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to decode image header")
		width, height, format = upload.Dimensions.Width(), upload.Dimensions.Height(), "png"
	}

	fileName := MediaFileName(upload.SpecID, upload.Fingerprint, format)
	storageKey := storage.Key(s.prefix, md5Hash[:2], fileName)
	contentType := getContentType(format)

	stored, err := s.images.Has(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("failed to check storage existence: %w", err)
	}
	uploaded := false
	if !stored {
		err := s.images.Put(ctx, storage.Object{
			Key:         storageKey,
			Data:        upload.Data,
			ContentType: contentType,
			Metadata: map[string]string{
				storage.MetaFingerprint: upload.Fingerprint,
				storage.MetaSpecID:      upload.SpecID,
			},
		})
		if err != nil {
			return "", fmt.Errorf("failed to upload to storage: %w", err)
		}
		uploaded = true
	}

	media := &domain.MediaItem{
		ID:          uuid.New().String(),
		Name:        MediaName(upload.ImageType, upload.CouncilName),
		AltText:     AltText(upload.SpecID, upload.CouncilName),
		SpecID:      upload.SpecID,
		Fingerprint: upload.Fingerprint,
		StorageKey:  storageKey,
		URL:         s.images.URL(storageKey),
		Width:       width,
		Height:      height,
		Format:      format,
		MimeType:    contentType,
		FileSize:    int64(len(upload.Data)),
		MD5Hash:     md5Hash,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, media); err != nil {
		if uploaded {
			if delErr := s.images.Remove(ctx, storageKey); delErr != nil {
				s.log(ctx).WithField("storage_key", storageKey).WithError(delErr).Error("Failed to rollback storage upload")
			}
		}
		return "", fmt.Errorf("failed to save media: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		"media_id":       media.ID,
		"storage_key":    storageKey,
		logger.FieldSize: media.FileSize,
	}).Debug("Image stored")
	return media.ID, nil
}

// MediaFileName returns "generated-<slug>-<fingerprint8>.<ext>".
func MediaFileName(specID, fingerprint, ext string) string {
	slug := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(specID), "-"), "-")
	if slug == "" {
		slug = "image"
	}
	if len(fingerprint) > 8 {
		fingerprint = fingerprint[:8]
	}
	if fingerprint == "" {
		return fmt.Sprintf("generated-%s.%s", slug, ext)
	}
	return fmt.Sprintf("generated-%s-%s.%s", slug, fingerprint, ext)
}

// AltText describes an image by its content subject and council,
// e.g. "service-bin-collection" becomes "Bin Collection - Westbridge District Council".
func AltText(specID, councilName string) string {
	words := strings.FieldsFunc(strings.ToLower(specID), func(r rune) bool { return r == '-' || r == '_' })
	for len(words) > 1 && isKindPrefix(words[0]) {
		words = words[1:]
	}
	subject := cases.Title(language.BritishEnglish).String(strings.Join(words, " "))
	if subject == "" {
		subject = "Image"
	}
	if councilName == "" {
		return subject
	}
	return subject + " - " + councilName
}

// MediaName returns "<Kind> image - <council>".
func MediaName(imageType domain.ImageType, councilName string) string {
	kind := string(imageType)
	if kind == "" {
		kind = string(domain.ImageTypeHero)
	}
	name := cases.Title(language.BritishEnglish).String(kind) + " image"
	if councilName == "" {
		return name
	}
	return name + " - " + councilName
}

func isKindPrefix(word string) bool {
	for _, p := range kindPrefixes {
		if word == p {
			return true
		}
	}
	return false
}

func calculateMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

func getImageInfo(data []byte) (width, height int, format string, err error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", err
	}
	return config.Width, config.Height, format, nil
}

func getContentType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
