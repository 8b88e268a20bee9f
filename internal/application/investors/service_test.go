package investors

import (
	"context"
	"testing"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndKYC(t *testing.T) {
	s := &Service{DB: testutil.NewDB(t)}
	ctx := context.Background()

	inv, err := s.Create(ctx, CreateInput{Email: " Ana@Example.com ", FullName: "ana  lima"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", inv.Email)
	assert.Equal(t, "Ana Lima", inv.FullName)
	assert.Equal(t, domain.KYCUnverified, inv.KYCStatus)

	_, err = s.Create(ctx, CreateInput{Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	updated, err := s.SetKYCStatus(ctx, inv.ID, domain.KYCVerified)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCVerified, updated.KYCStatus)

	status, err := s.Status(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCVerified, status)
}

func TestCreate_Invalid(t *testing.T) {
	s := &Service{DB: testutil.NewDB(t)}
	ctx := context.Background()

	_, err := s.Create(ctx, CreateInput{Email: "nope"})
	assert.ErrorIs(t, err, ErrInvalidInvestor)

	_, err = s.Create(ctx, CreateInput{Email: "a@b.io", KYCStatus: "approved"})
	assert.ErrorIs(t, err, ErrInvalidInvestor)
}

func TestUnknownInvestor(t *testing.T) {
	s := &Service{DB: testutil.NewDB(t)}
	ctx := context.Background()

	_, err := s.Status(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrInvestorNotFound)

	_, err = s.SetKYCStatus(ctx, uuid.New(), domain.KYCVerified)
	assert.ErrorIs(t, err, domain.ErrInvestorNotFound)

	_, err = s.SetKYCStatus(ctx, uuid.New(), "bogus")
	assert.ErrorIs(t, err, ErrInvalidInvestor)
}
