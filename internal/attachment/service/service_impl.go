package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/fieldbooks/internal/attachment/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/providers/storage"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultContentType = "application/octet-stream"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Repo      domain.Repository
	Bucket    storage.Bucket
	Publisher viewcache.Publisher `optional:"true"`
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	baseURL   string
	maxSize   int64
	repo      domain.Repository
	bucket    storage.Bucket
	publisher viewcache.Publisher
	auditSvc  auditdomain.Service
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = viewcache.NopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("attachment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		baseURL:   strings.TrimRight(p.Config.Storage.BaseURL, "/"),
		maxSize:   p.Config.Storage.MaxSize,
		repo:      p.Repo,
		bucket:    p.Bucket,
		publisher: publisher,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) Upload(ctx context.Context, req domain.UploadRequest) (domain.Attachment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Attachment{}, domain.ErrInvalidOrganization
	}
	if _, _, ok := req.EntityType.Table(); !ok {
		return domain.Attachment{}, domain.ErrInvalidEntityType
	}
	entityID, err := parseID(req.EntityID)
	if err != nil {
		return domain.Attachment{}, err
	}
	filename := path.Base(strings.ReplaceAll(strings.TrimSpace(req.Filename), "\\", "/"))
	if filename == "" || filename == "." || filename == "/" || req.Body == nil {
		return domain.Attachment{}, domain.ErrInvalidFilename
	}
	if err := s.checkOwner(ctx, orgID, req.EntityType, entityID); err != nil {
		return domain.Attachment{}, err
	}

	id := s.genID.Generate()
	key := objectKey(orgID, req.EntityType, entityID, filename)
	body := req.Body
	if s.maxSize > 0 {
		body = io.LimitReader(req.Body, s.maxSize+1)
	}
	size, err := s.bucket.Put(ctx, key, body)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	switch {
	case size == 0:
		s.discard(ctx, key)
		return domain.Attachment{}, domain.ErrEmptyFile
	case s.maxSize > 0 && size > s.maxSize:
		s.discard(ctx, key)
		return domain.Attachment{}, domain.ErrTooLarge
	}

	now := s.clock.Now()
	attachment := domain.Attachment{
		ID:          id,
		OrgID:       orgID,
		EntityType:  req.EntityType,
		EntityID:    entityID,
		BucketKey:   key,
		Filename:    filename,
		ContentType: contentType(req.ContentType, filename),
		Size:        size,
		URL:         fmt.Sprintf("%s/%s/content", s.baseURL, id),
		UploadedBy:  orgcontext.ActorID(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &attachment); err != nil {
		s.discard(ctx, key)
		return domain.Attachment{}, err
	}

	s.afterCommit(ctx, "attachment.upload", &attachment)
	return attachment, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Attachment, error) {
	attachment, err := s.load(ctx, id)
	if err != nil {
		return domain.Attachment{}, err
	}
	return *attachment, nil
}

func (s *Service) Open(ctx context.Context, id string) (domain.Attachment, io.ReadCloser, error) {
	attachment, err := s.load(ctx, id)
	if err != nil {
		return domain.Attachment{}, nil, err
	}
	rc, err := s.bucket.Open(ctx, attachment.BucketKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Error("attachment content missing", zap.String("attachment_id", attachment.ID.String()), zap.String("key", attachment.BucketKey))
			return domain.Attachment{}, nil, domain.ErrNotFound
		}
		return domain.Attachment{}, nil, err
	}
	return *attachment, rc, nil
}

func (s *Service) List(ctx context.Context, entityType domain.EntityType, entityID string) ([]domain.Attachment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if _, _, ok := entityType.Table(); !ok {
		return nil, domain.ErrInvalidEntityType
	}
	id, err := parseID(entityID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, orgID, entityType, id); err != nil {
		return nil, err
	}
	return s.repo.ListByEntity(ctx, s.db, orgID, entityType, id)
}

// Delete hides the attachment. The stored object is kept so the row can be recovered.
func (s *Service) Delete(ctx context.Context, id string) error {
	attachment, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.SoftDelete(ctx, s.db, attachment.OrgID, attachment.ID, orgcontext.ActorID(ctx), s.clock.Now())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.afterCommit(ctx, "attachment.delete", attachment)
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Attachment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	attachmentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	attachment, err := s.repo.FindByID(ctx, s.db, orgID, attachmentID)
	if err != nil {
		return nil, err
	}
	if attachment == nil {
		return nil, domain.ErrNotFound
	}
	if _, scoped := orgcontext.VendorScope(ctx); scoped {
		if err := s.checkOwner(ctx, orgID, attachment.EntityType, attachment.EntityID); err != nil {
			return nil, domain.ErrNotFound
		}
	}
	return attachment, nil
}

// checkOwner confirms the entity is live and, for vendor portal actors, that it belongs to their vendor.
func (s *Service) checkOwner(ctx context.Context, orgID snowflake.ID, entityType domain.EntityType, entityID snowflake.ID) error {
	owner, err := s.repo.FindOwner(ctx, s.db, orgID, entityType, entityID)
	if err != nil {
		return err
	}
	if !owner.Exists {
		return domain.ErrEntityNotFound
	}
	vendorID, scoped := orgcontext.VendorScope(ctx)
	if !scoped {
		return nil
	}
	if owner.VendorID == nil || *owner.VendorID != vendorID {
		return domain.ErrEntityNotFound
	}
	return nil
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.bucket.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn("discard upload failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) afterCommit(ctx context.Context, action string, attachment *domain.Attachment) {
	s.publisher.Publish(ctx, attachment.OrgID, viewcache.TopicAttachment)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "attachment",
		TargetID:   attachment.ID,
		Metadata: map[string]any{
			"entity_type": string(attachment.EntityType),
			"entity_id":   attachment.EntityID.String(),
			"filename":    attachment.Filename,
			"size":        attachment.Size,
		},
	}); err != nil {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

// objectKey builds "<org>/<entity type>/<entity id>/<ulid>-<slugged name><ext>".
func objectKey(orgID snowflake.ID, entityType domain.EntityType, entityID snowflake.ID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	name := slug.Make(strings.TrimSuffix(filename, path.Ext(filename)))
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("%s/%s/%s/%s-%s%s", orgID, entityType, entityID, strings.ToLower(ulid.Make().String()), name, ext)
}

func contentType(declared, filename string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return defaultContentType
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
