package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Feature is a named capability a user can hold.
type Feature string

const (
	FeatureRecipeAccess Feature = "recipe_access"
	FeaturePDFDownloads Feature = "pdf_downloads"
)

// OneTimeFeatures are granted by single payments and revoked by refunds.
var OneTimeFeatures = []Feature{FeatureRecipeAccess, FeaturePDFDownloads}

// ParseFeature normalises a feature name.
func ParseFeature(value string) (Feature, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrInvalidFeature
	}
	return Feature(value), nil
}

// Entitlement is a standalone grant of one feature to one user.
type Entitlement struct {
	UserID     uuid.UUID
	Feature    Feature
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	Provenance Provenance
}

// NewEntitlement validates and builds a grant. A nil expiresAt is perpetual.
func NewEntitlement(userID uuid.UUID, feature Feature, grantedAt time.Time, expiresAt *time.Time, provenance Provenance) (*Entitlement, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	if feature == "" {
		return nil, ErrInvalidFeature
	}
	if provenance == nil {
		provenance = ManualGrant{}
	}
	return &Entitlement{
		UserID:     userID,
		Feature:    feature,
		GrantedAt:  grantedAt.UTC(),
		ExpiresAt:  expiresAt,
		Provenance: provenance,
	}, nil
}

// IsPerpetual reports a grant without expiry.
func (e *Entitlement) IsPerpetual() bool {
	return e.ExpiresAt == nil
}

// IsActiveAt reports whether the grant is in force at t. Expired rows
// stay stored but no longer count.
func (e *Entitlement) IsActiveAt(t time.Time) bool {
	return e.ExpiresAt == nil || t.Before(*e.ExpiresAt)
}
