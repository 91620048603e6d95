package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/auth"
	"github.com/chamaflow/fundcore/internal/domain"
)

func fundFromPath(r *http.Request) (uuid.UUID, *AppError) {
	fundID, err := uuid.Parse(r.PathValue("fund_id"))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return fundID, nil
}

func periodFromPath(r *http.Request) (domain.PeriodKey, *AppError) {
	period, err := domain.ParsePeriod(r.PathValue("period"))
	if err != nil {
		return "", ErrInvalidPeriod
	}
	return period, nil
}

// actorFromContext resolves the attribution string stored on ledger entries.
func actorFromContext(r *http.Request) (string, *AppError) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return "", ErrMissingToken
	}
	return claims.Actor(), nil
}
