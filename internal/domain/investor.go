package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// KYCStatus is the verification state reported by the identity provider.
type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
	KYCExpired    KYCStatus = "expired"
)

// Valid reports whether s is a known status.
func (s KYCStatus) Valid() bool {
	switch s {
	case KYCUnverified, KYCPending, KYCVerified, KYCRejected, KYCExpired:
		return true
	}
	return false
}

// Investor is the minimal investor record the engine needs.
type Investor struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	FullName  string    `gorm:"column:full_name" json:"full_name"`
	KYCStatus KYCStatus `gorm:"column:kyc_status;not null;default:unverified" json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Investor) TableName() string {
	return "investors"
}

// BeforeCreate sets the UUID if not set and defaults KYC to unverified.
func (i *Investor) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.KYCStatus == "" {
		i.KYCStatus = KYCUnverified
	}
	return nil
}
