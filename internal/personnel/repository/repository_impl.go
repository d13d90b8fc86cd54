package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPerson(ctx context.Context, db *gorm.DB, person *domain.Person) error {
	return db.WithContext(ctx).Create(person).Error
}

func (r *repo) UpdatePerson(ctx context.Context, db *gorm.DB, person *domain.Person) error {
	return db.WithContext(ctx).
		Model(&domain.Person{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", person.OrgID, person.ID).
		Updates(map[string]any{
			"name":        person.Name,
			"email":       person.Email,
			"phone":       person.Phone,
			"trade":       person.Trade,
			"hourly_rate": person.HourlyRate,
			"active":      person.Active,
			"updated_at":  person.UpdatedAt,
		}).Error
}

func (r *repo) FindPerson(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Person, error) {
	return findPerson(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindPersonForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Person, error) {
	return findPerson(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func findPerson(db *gorm.DB, orgID, id snowflake.ID) (*domain.Person, error) {
	var person domain.Person
	err := db.Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).Take(&person).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *repo) ListPeople(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Person, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Person{}).
		Where("org_id = ? AND deleted_at IS NULL", orgID)
	if filter.Trade != "" {
		stmt = stmt.Where("trade = ?", filter.Trade)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	stmt, err := pagination.Apply(stmt, filter.Page)
	if err != nil {
		return nil, err
	}

	var people []domain.Person
	if err := stmt.Find(&people).Error; err != nil {
		return nil, err
	}
	return people, nil
}

func (r *repo) SoftDeletePerson(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	return softDelete(ctx, db, &domain.Person{}, orgID, id, by, at)
}

func (r *repo) InsertCertification(ctx context.Context, db *gorm.DB, cert *domain.Certification) error {
	return db.WithContext(ctx).Create(cert).Error
}

func (r *repo) UpdateCertification(ctx context.Context, db *gorm.DB, cert *domain.Certification) error {
	return db.WithContext(ctx).
		Model(&domain.Certification{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", cert.OrgID, cert.ID).
		Updates(map[string]any{
			"name":       cert.Name,
			"issuer":     cert.Issuer,
			"issued_at":  cert.IssuedAt,
			"expires_at": cert.ExpiresAt,
			"updated_at": cert.UpdatedAt,
		}).Error
}

func (r *repo) FindCertification(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Certification, error) {
	var cert domain.Certification
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Take(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *repo) ListCertifications(ctx context.Context, db *gorm.DB, orgID, personID snowflake.ID) ([]domain.Certification, error) {
	var certs []domain.Certification
	err := db.WithContext(ctx).
		Where("org_id = ? AND person_id = ? AND deleted_at IS NULL", orgID, personID).
		Order("expires_at ASC").
		Order("id ASC").
		Find(&certs).Error
	if err != nil {
		return nil, err
	}
	return certs, nil
}

func (r *repo) SoftDeleteCertification(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	return softDelete(ctx, db, &domain.Certification{}, orgID, id, by, at)
}

func (r *repo) SoftDeleteCertificationsOf(ctx context.Context, db *gorm.DB, orgID, personID snowflake.ID, by string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Certification{}).
		Where("org_id = ? AND person_id = ? AND deleted_at IS NULL", orgID, personID).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at}).Error
}

func (r *repo) ListExpiring(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, until time.Time) ([]domain.ExpiringCertification, error) {
	stmt := db.WithContext(ctx).
		Table("certifications").
		Select("certifications.*, people.name AS person_name").
		Joins("JOIN people ON people.id = certifications.person_id AND people.org_id = certifications.org_id").
		Where("certifications.deleted_at IS NULL AND people.deleted_at IS NULL AND people.active = ?", true).
		Where("certifications.expires_at IS NOT NULL AND certifications.expires_at >= ? AND certifications.expires_at <= ?", from, until)
	if orgID != 0 {
		stmt = stmt.Where("certifications.org_id = ?", orgID)
	}

	var rows []domain.ExpiringCertification
	err := stmt.
		Order("certifications.org_id ASC").
		Order("certifications.expires_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func softDelete(ctx context.Context, db *gorm.DB, model any, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(model).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
