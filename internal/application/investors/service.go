package investors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrInvalidInvestor is returned for malformed create requests.
var ErrInvalidInvestor = errors.New("invalid investor")

// ErrEmailTaken is returned when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

type Service struct {
	DB *gorm.DB
}

type CreateInput struct {
	Email     string           `json:"email"`
	FullName  string           `json:"full_name"`
	KYCStatus domain.KYCStatus `json:"kyc_status"`
}

// Create registers an investor. KYC defaults to unverified.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Investor, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if !validation.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidInvestor)
	}
	name := strings.TrimSpace(in.FullName)
	if name != "" {
		if !validation.IsValidFullname(name) {
			return nil, fmt.Errorf("%w: full name contains invalid characters", ErrInvalidInvestor)
		}
		name = validation.NormalizeFullname(name)
	}
	status := in.KYCStatus
	if status == "" {
		status = domain.KYCUnverified
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown kyc status %q", ErrInvalidInvestor, status)
	}

	var existing int64
	if err := s.DB.WithContext(ctx).Model(&domain.Investor{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	inv := &domain.Investor{Email: email, FullName: name, KYCStatus: status}
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Investor, error) {
	var inv domain.Investor
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvestorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Status returns the investor's KYC status.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (domain.KYCStatus, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return inv.KYCStatus, nil
}

// SetKYCStatus records a verification result from the identity provider.
func (s *Service) SetKYCStatus(ctx context.Context, id uuid.UUID, status domain.KYCStatus) (*domain.Investor, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown kyc status %q", ErrInvalidInvestor, status)
	}
	res := s.DB.WithContext(ctx).Model(&domain.Investor{}).Where("id = ?", id).Update("kyc_status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrInvestorNotFound
	}
	log.Info().Str("investor_id", id.String()).Str("kyc_status", string(status)).Msg("kyc status updated")
	return s.Get(ctx, id)
}
