package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/security"
	"github.com/google/uuid"
)

const (
	productPrefix   = "produtos"
	tempPrefix      = "temp"
	photoPrefix     = "retiradas/fotos"
	signaturePrefix = "retiradas/assinaturas"

	randomSuffixLength = 6
)

type objectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
	KeyFromURL(raw string) (string, bool)
}

// Service stores images uploaded by the kiosk and the admin console.
type Service interface {
	UploadProductImage(ctx context.Context, productID uuid.UUID, upload Upload) (*Stored, error)
	UploadWithdrawalPhoto(ctx context.Context, upload Upload) (*Stored, error)
	UploadSignature(ctx context.Context, upload Upload) (*Stored, error)
	UploadSignatureDataURL(ctx context.Context, dataURL string) (*Stored, error)
	DeleteByURL(ctx context.Context, rawURL string) error
}

// Upload is a file received from a client.
type Upload struct {
	FileName string
	Body     io.Reader
}

// Stored describes an object written to the bucket.
type Stored struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type service struct {
	store    objectStore
	maxBytes int64
	now      func() time.Time
}

// NewService constructs a media service writing to the provided object store.
func NewService(store objectStore, maxBytes int64) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive")
	}
	return &service{store: store, maxBytes: maxBytes, now: time.Now}, nil
}

// UploadProductImage stores an image under produtos/{id}/. A nil product id
// stores it under temp/ for products that are not saved yet.
func (s *service) UploadProductImage(ctx context.Context, productID uuid.UUID, upload Upload) (*Stored, error) {
	prefix := tempPrefix
	if productID != uuid.Nil {
		prefix = path.Join(productPrefix, productID.String())
	}
	return s.storeUpload(ctx, prefix, upload)
}

func (s *service) UploadWithdrawalPhoto(ctx context.Context, upload Upload) (*Stored, error) {
	return s.storeUpload(ctx, photoPrefix, upload)
}

func (s *service) UploadSignature(ctx context.Context, upload Upload) (*Stored, error) {
	return s.storeUpload(ctx, signaturePrefix, upload)
}

// UploadSignatureDataURL accepts the base64 data URL produced by the signature pad.
func (s *service) UploadSignatureDataURL(ctx context.Context, dataURL string) (*Stored, error) {
	payload, err := decodeDataURL(dataURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid signature data url")
	}
	return s.storeUpload(ctx, signaturePrefix, Upload{FileName: "assinatura", Body: bytes.NewReader(payload)})
}

// DeleteByURL removes the object behind a public URL. URLs that do not belong
// to the bucket are ignored.
func (s *service) DeleteByURL(ctx context.Context, rawURL string) error {
	key, ok := s.store.KeyFromURL(strings.TrimSpace(rawURL))
	if !ok {
		return nil
	}
	if err := s.store.Remove(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove object")
	}
	return nil
}

func (s *service) storeUpload(ctx context.Context, prefix string, upload Upload) (*Stored, error) {
	if upload.Body == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is required")
	}
	data, err := io.ReadAll(io.LimitReader(upload.Body, s.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file must be at most %d MB", s.maxBytes>>20)).
			WithDetails(map[string]any{"max_bytes": s.maxBytes})
	}
	detected, err := sniffImage(data)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	key, err := s.buildKey(prefix, upload.FileName, detected.Extension())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build object key")
	}
	url, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), detected.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload object")
	}
	return &Stored{
		Key:         key,
		URL:         url,
		ContentType: detected.String(),
		SizeBytes:   int64(len(data)),
	}, nil
}

// buildKey produces {prefix}/{unix millis}-{random}-{name}.
func (s *service) buildKey(prefix, fileName, extension string) (string, error) {
	suffix, err := security.RandomString(randomSuffixLength)
	if err != nil {
		return "", err
	}
	name := sanitizeFileName(fileName)
	if name == "" {
		name = "imagem"
	}
	if path.Ext(name) == "" {
		name += extension
	}
	return fmt.Sprintf("%s/%d-%s-%s", prefix, s.now().UnixMilli(), suffix, name), nil
}

func decodeDataURL(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "data:") {
		return nil, fmt.Errorf("missing data: scheme")
	}
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("missing payload")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("payload must be base64 encoded")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return decoded, nil
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
