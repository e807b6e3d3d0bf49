package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

// UserPlan records a user's subscription tier.
type UserPlan struct {
	UserID    string    `gorm:"column:user_id;type:varchar(36);primaryKey"`
	Plan      string    `gorm:"column:plan;type:varchar(16);not null;default:'free'"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (UserPlan) TableName() string { return "user_plans" }

const planPremium = "premium"

type entitlementChecker struct {
	db *gorm.DB
}

func NewEntitlementChecker(db *gorm.DB) domain.EntitlementChecker {
	return &entitlementChecker{db: db}
}

// IsEntitled treats a missing row as the free tier.
func (c *entitlementChecker) IsEntitled(ctx context.Context, userID string) (bool, error) {
	var plan UserPlan
	err := c.db.WithContext(ctx).Where("user_id = ?", userID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return plan.Plan == planPremium, nil
}
