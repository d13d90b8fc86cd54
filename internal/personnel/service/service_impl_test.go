package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/internal/personnel/repository"
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type outbox struct {
	sent []email.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T, box *outbox, inbox string) domain.Service {
	t.Helper()
	conn := db.NewTest(t, &domain.Person{}, &domain.Certification{})
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	cfg := config.Config{CompanyName: "Keel & Beam Builders"}
	cfg.Email.OfficeInbox = inbox
	return New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(now),
		Config: cfg,
		Repo:   repository.Provide(),
		Email:  box,
	})
}

func orgCtx(org int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), snowflake.ID(org))
}

func days(n int) *time.Time {
	t := now.Add(time.Duration(n) * 24 * time.Hour)
	return &t
}

func TestPersonCRUD(t *testing.T) {
	svc := newService(t, &outbox{}, "")
	ctx := orgCtx(5)

	_, err := svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: "Rosa Diaz", HourlyRate: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidHourlyRate)

	rosa, err := svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: "Rosa Diaz", Trade: "Carpentry", HourlyRate: 4200})
	require.NoError(t, err)
	assert.True(t, rosa.Active)
	assert.Equal(t, "carpentry", rosa.Trade)
	_, err = svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: "Sam Okafor", Trade: "electrical"})
	require.NoError(t, err)

	inactive := false
	rosa, err = svc.UpdatePerson(ctx, rosa.ID.String(), domain.UpdatePersonRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, rosa.Active)

	active, err := svc.ListPeople(ctx, domain.ListPeopleRequest{Active: "true"})
	require.NoError(t, err)
	require.Len(t, active.People, 1)
	assert.Equal(t, "Sam Okafor", active.People[0].Name)

	_, err = svc.ListPeople(ctx, domain.ListPeopleRequest{Active: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidActiveFilter)

	_, err = svc.GetPerson(orgCtx(6), rosa.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.DeletePerson(ctx, rosa.ID.String()))
	assert.ErrorIs(t, svc.DeletePerson(ctx, rosa.ID.String()), domain.ErrNotFound)
}

func TestCertifications(t *testing.T) {
	svc := newService(t, &outbox{}, "")
	ctx := orgCtx(5)

	rosa, err := svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: "Rosa Diaz"})
	require.NoError(t, err)

	_, err = svc.AddCertification(ctx, rosa.ID.String(), domain.CertificationRequest{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidCertification)
	_, err = svc.AddCertification(ctx, rosa.ID.String(), domain.CertificationRequest{
		Name:      "OSHA 30",
		IssuedAt:  days(0),
		ExpiresAt: days(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCertificateDates)

	osha, err := svc.AddCertification(ctx, rosa.ID.String(), domain.CertificationRequest{
		Name:      "OSHA 30",
		Issuer:    "OSHA",
		IssuedAt:  days(-700),
		ExpiresAt: days(10),
	})
	require.NoError(t, err)
	_, err = svc.AddCertification(ctx, rosa.ID.String(), domain.CertificationRequest{Name: "First Aid", ExpiresAt: days(60)})
	require.NoError(t, err)

	certs, err := svc.ListCertifications(ctx, rosa.ID.String())
	require.NoError(t, err)
	assert.Len(t, certs, 2)

	soon, err := svc.ListExpiring(ctx, 30)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, osha.ID, soon[0].ID)
	assert.Equal(t, "Rosa Diaz", soon[0].PersonName)
	assert.Equal(t, 10, soon[0].DaysLeft)

	_, err = svc.ListExpiring(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	renewed, err := svc.UpdateCertification(ctx, osha.ID.String(), domain.CertificationRequest{
		Name:      "OSHA 30",
		Issuer:    "OSHA",
		ExpiresAt: days(400),
	})
	require.NoError(t, err)
	assert.Nil(t, renewed.IssuedAt)
	soon, err = svc.ListExpiring(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, soon)

	require.NoError(t, svc.DeletePerson(ctx, rosa.ID.String()))
	assert.ErrorIs(t, svc.DeleteCertification(ctx, osha.ID.String()), domain.ErrCertificationNotFound)
}

func TestSendExpiryDigest(t *testing.T) {
	box := &outbox{}
	svc := newService(t, box, "office@keelbeam.test")

	for _, org := range []int64{5, 6} {
		ctx := orgCtx(org)
		person, err := svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: "Crew Lead"})
		require.NoError(t, err)
		_, err = svc.AddCertification(ctx, person.ID.String(), domain.CertificationRequest{Name: "Forklift", ExpiresAt: days(5)})
		require.NoError(t, err)
		_, err = svc.AddCertification(ctx, person.ID.String(), domain.CertificationRequest{Name: "Expired", ExpiresAt: days(-3)})
		require.NoError(t, err)
	}
	benched, err := svc.CreatePerson(orgCtx(5), domain.CreatePersonRequest{Name: "On Leave"})
	require.NoError(t, err)
	_, err = svc.AddCertification(orgCtx(5), benched.ID.String(), domain.CertificationRequest{Name: "Scaffold", ExpiresAt: days(2)})
	require.NoError(t, err)
	inactive := false
	_, err = svc.UpdatePerson(orgCtx(5), benched.ID.String(), domain.UpdatePersonRequest{Active: &inactive})
	require.NoError(t, err)

	count, err := svc.SendExpiryDigest(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, box.sent, 2)
	assert.Equal(t, []string{"office@keelbeam.test"}, box.sent[0].To)
	assert.Contains(t, box.sent[0].HTMLBody, "Forklift")
	assert.Contains(t, box.sent[0].HTMLBody, "Keel &amp; Beam Builders")
	assert.NotContains(t, box.sent[0].HTMLBody, "Scaffold")

	box.err = errors.New("smtp down")
	_, err = svc.SendExpiryDigest(context.Background(), 30)
	assert.ErrorContains(t, err, "smtp down")
}

func TestSendExpiryDigestWithoutInbox(t *testing.T) {
	box := &outbox{}
	svc := newService(t, box, "")
	ctx := orgCtx(5)

	person, err := svc.CreatePerson(ctx, domain.CreatePersonRequest{Name: "Crew Lead"})
	require.NoError(t, err)
	_, err = svc.AddCertification(ctx, person.ID.String(), domain.CertificationRequest{Name: "Forklift", ExpiresAt: days(5)})
	require.NoError(t, err)

	count, err := svc.SendExpiryDigest(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, box.sent)
}
