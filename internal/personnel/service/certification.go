package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"go.uber.org/zap"
)

func (s *Service) AddCertification(ctx context.Context, personID string, req domain.CertificationRequest) (domain.Certification, error) {
	person, err := s.loadPerson(ctx, personID)
	if err != nil {
		return domain.Certification{}, err
	}

	now := s.clock.Now()
	cert := domain.Certification{
		ID:        s.genID.Generate(),
		OrgID:     person.OrgID,
		PersonID:  person.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyCertification(&cert, req); err != nil {
		return domain.Certification{}, err
	}
	if err := s.repo.InsertCertification(ctx, s.db, &cert); err != nil {
		return domain.Certification{}, err
	}
	s.afterCommit(ctx, cert.OrgID, "certification.create", "certification", cert.ID)
	return cert, nil
}

// UpdateCertification replaces every field of the certification with the request.
func (s *Service) UpdateCertification(ctx context.Context, id string, req domain.CertificationRequest) (domain.Certification, error) {
	cert, err := s.loadCertification(ctx, id)
	if err != nil {
		return domain.Certification{}, err
	}
	if err := applyCertification(cert, req); err != nil {
		return domain.Certification{}, err
	}
	cert.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateCertification(ctx, s.db, cert); err != nil {
		return domain.Certification{}, err
	}
	s.afterCommit(ctx, cert.OrgID, "certification.update", "certification", cert.ID)
	return *cert, nil
}

func (s *Service) DeleteCertification(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	certID, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.SoftDeleteCertification(ctx, s.db, orgID, certID, orgcontext.ActorID(ctx), s.clock.Now())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrCertificationNotFound
	}
	s.afterCommit(ctx, orgID, "certification.delete", "certification", certID)
	return nil
}

func (s *Service) ListCertifications(ctx context.Context, personID string) ([]domain.Certification, error) {
	person, err := s.loadPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCertifications(ctx, s.db, person.OrgID, person.ID)
}

func (s *Service) ListExpiring(ctx context.Context, days int) ([]domain.ExpiringCertification, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.expiring(ctx, orgID, days)
}

func (s *Service) SendExpiryDigest(ctx context.Context, days int) (int, error) {
	rows, err := s.expiring(ctx, 0, days)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	byOrg := make(map[snowflake.ID][]domain.ExpiringCertification)
	var orgs []snowflake.ID
	for _, row := range rows {
		if _, seen := byOrg[row.OrgID]; !seen {
			orgs = append(orgs, row.OrgID)
		}
		byOrg[row.OrgID] = append(byOrg[row.OrgID], row)
		s.log.Info("certification expiring",
			zap.String("org_id", row.OrgID.String()),
			zap.String("person", row.PersonName),
			zap.String("certification", row.Name),
			zap.Int("days_left", row.DaysLeft),
		)
	}

	if s.email == nil || s.officeInbox == "" {
		s.log.Info("expiry digest not emailed; office inbox not configured", zap.Int("count", len(rows)))
		return len(rows), nil
	}
	for _, orgID := range orgs {
		msg := email.Message{
			To:       []string{s.officeInbox},
			Subject:  fmt.Sprintf("%d certification(s) expiring within %d days", len(byOrg[orgID]), days),
			HTMLBody: digestBody(s.companyName, byOrg[orgID]),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			return len(rows), fmt.Errorf("send expiry digest for org %s: %w", orgID, err)
		}
	}
	return len(rows), nil
}

func (s *Service) expiring(ctx context.Context, orgID snowflake.ID, days int) ([]domain.ExpiringCertification, error) {
	if days <= 0 {
		return nil, domain.ErrInvalidWindow
	}
	now := s.clock.Now()
	rows, err := s.repo.ListExpiring(ctx, s.db, orgID, now, now.Add(time.Duration(days)*24*time.Hour))
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].DaysLeft, _ = rows[i].Certification.DaysLeft(now)
	}
	return rows, nil
}

func (s *Service) loadCertification(ctx context.Context, id string) (*domain.Certification, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	certID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	cert, err := s.repo.FindCertification(ctx, s.db, orgID, certID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, domain.ErrCertificationNotFound
	}
	return cert, nil
}

func applyCertification(cert *domain.Certification, req domain.CertificationRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ErrInvalidCertification
	}
	if req.IssuedAt != nil && req.ExpiresAt != nil && req.ExpiresAt.Before(*req.IssuedAt) {
		return domain.ErrInvalidCertificateDates
	}
	cert.Name = name
	cert.Issuer = strings.TrimSpace(req.Issuer)
	cert.IssuedAt = utc(req.IssuedAt)
	cert.ExpiresAt = utc(req.ExpiresAt)
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func digestBody(company string, rows []domain.ExpiringCertification) string {
	var b strings.Builder
	b.WriteString("<p>The following certifications expire soon")
	if company != "" {
		b.WriteString(" at ")
		b.WriteString(html.EscapeString(company))
	}
	b.WriteString(":</p><ul>")
	for _, row := range rows {
		fmt.Fprintf(&b, "<li>%s: %s", html.EscapeString(row.PersonName), html.EscapeString(row.Name))
		if row.Issuer != "" {
			fmt.Fprintf(&b, " (%s)", html.EscapeString(row.Issuer))
		}
		if row.ExpiresAt != nil {
			fmt.Fprintf(&b, " expires %s, in %d day(s)", row.ExpiresAt.Format("Jan 2, 2006"), row.DaysLeft)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
