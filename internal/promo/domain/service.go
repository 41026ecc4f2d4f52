package domain

import (
	"context"

	"github.com/smallbiznis/placementpay/internal/errs"
	"gorm.io/gorm"
)

var (
	ErrPromoNotFound  = errs.New(errs.KindNotFound, "promo_not_found")
	ErrPromoExpired   = errs.New(errs.KindInvalidState, "promo_expired")
	ErrPromoExhausted = errs.New(errs.KindInvalidState, "promo_exhausted")
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
}

type Service interface {
	Validate(ctx context.Context, code string) (PromoCode, error)
}
