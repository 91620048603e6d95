package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/money"
)

type fundRepo interface {
	Create(ctx context.Context, fund *domain.Fund) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error)
	GetConfig(ctx context.Context, fundID uuid.UUID) (*domain.FundConfig, error)
	UpsertConfig(ctx context.Context, cfg *domain.FundConfig) error
}

type ledgerReader interface {
	GetByFund(ctx context.Context, fundID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
	PoolBalance(ctx context.Context, tx *sql.Tx, fundID uuid.UUID) (decimal.Decimal, error)
}

type FundHandler struct {
	funds  fundRepo
	ledger ledgerReader
	db     *sql.DB
}

func NewFundHandler(funds fundRepo, ledger ledgerReader, db *sql.DB) *FundHandler {
	return &FundHandler{funds: funds, ledger: ledger, db: db}
}

type createFundRequest struct {
	Name         string `json:"name"`
	MonthlyRate  string `json:"monthly_rate"`
	MinPrincipal string `json:"min_principal"`
	GraceDays    int    `json:"grace_days"`
}

func (r createFundRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}

	if r.MonthlyRate == "" {
		errs = append(errs, FieldError{Field: "monthly_rate", Message: "required"})
	} else if rate, err := decimal.NewFromString(r.MonthlyRate); err != nil {
		errs = append(errs, FieldError{Field: "monthly_rate", Message: "must be a decimal string"})
	} else if money.ValidateRate(rate) != nil {
		errs = append(errs, FieldError{Field: "monthly_rate", Message: "must be non-negative with at most six decimal places"})
	}

	if r.MinPrincipal == "" {
		errs = append(errs, FieldError{Field: "min_principal", Message: "required"})
	} else if floor, err := decimal.NewFromString(r.MinPrincipal); err != nil {
		errs = append(errs, FieldError{Field: "min_principal", Message: "must be a decimal string"})
	} else if money.ValidateAmount(floor) != nil {
		errs = append(errs, FieldError{Field: "min_principal", Message: "must be non-negative with at most two decimal places"})
	}

	if r.GraceDays < 0 {
		errs = append(errs, FieldError{Field: "grace_days", Message: "must not be negative"})
	}

	return errs
}

type fundDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type fundConfigDTO struct {
	MonthlyRate  decimal.Decimal `json:"monthly_rate"`
	MinPrincipal decimal.Decimal `json:"min_principal"`
	GraceDays    int             `json:"grace_days"`
}

func (h *FundHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createFundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	rate, _ := decimal.NewFromString(req.MonthlyRate)
	floor, _ := decimal.NewFromString(req.MinPrincipal)

	now := time.Now().UTC()
	fund := &domain.Fund{
		ID:        uuid.New(),
		Name:      req.Name,
		Status:    domain.FundStatusActive,
		CreatedAt: now,
	}
	if err := h.funds.Create(r.Context(), fund); err != nil {
		log.Error("fund creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	cfg := &domain.FundConfig{
		FundID:       fund.ID,
		MonthlyRate:  rate,
		MinPrincipal: floor,
		GraceDays:    req.GraceDays,
		UpdatedAt:    now,
	}
	if err := h.funds.UpsertConfig(r.Context(), cfg); err != nil {
		log.Error("fund config write failed", "error", err, "fund_id", fund.ID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"fund": fundDTO{
			ID:        fund.ID,
			Name:      fund.Name,
			Status:    string(fund.Status),
			CreatedAt: fund.CreatedAt,
		},
		"config": fundConfigDTO{
			MonthlyRate:  cfg.MonthlyRate,
			MinPrincipal: cfg.MinPrincipal,
			GraceDays:    cfg.GraceDays,
		},
	})
}

func (h *FundHandler) Get(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	fund, err := h.funds.GetByID(r.Context(), fundID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("fund lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	cfg, err := h.funds.GetConfig(r.Context(), fundID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("fund config lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"fund": fundDTO{
			ID:        fund.ID,
			Name:      fund.Name,
			Status:    string(fund.Status),
			CreatedAt: fund.CreatedAt,
		},
		"config": fundConfigDTO{
			MonthlyRate:  cfg.MonthlyRate,
			MinPrincipal: cfg.MinPrincipal,
			GraceDays:    cfg.GraceDays,
		},
	})
}

type updateConfigRequest struct {
	MonthlyRate  string `json:"monthly_rate"`
	MinPrincipal string `json:"min_principal"`
	GraceDays    int    `json:"grace_days"`
}

// UpdateConfig changes the fund's lending defaults for future
// disbursements. Existing loans keep their snapshotted terms.
func (h *FundHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	fields := createFundRequest{
		Name:         "-",
		MonthlyRate:  req.MonthlyRate,
		MinPrincipal: req.MinPrincipal,
		GraceDays:    req.GraceDays,
	}.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if _, err := h.funds.GetByID(r.Context(), fundID); err != nil {
		RespondDomainError(w, err)
		return
	}

	rate, _ := decimal.NewFromString(req.MonthlyRate)
	floor, _ := decimal.NewFromString(req.MinPrincipal)

	cfg := &domain.FundConfig{
		FundID:       fundID,
		MonthlyRate:  rate,
		MinPrincipal: floor,
		GraceDays:    req.GraceDays,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := h.funds.UpsertConfig(r.Context(), cfg); err != nil {
		logging.FromContext(r.Context()).Error("fund config update failed", "error", err, "fund_id", fundID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, fundConfigDTO{
		MonthlyRate:  cfg.MonthlyRate,
		MinPrincipal: cfg.MinPrincipal,
		GraceDays:    cfg.GraceDays,
	})
}

type ledgerEntryDTO struct {
	ID             uuid.UUID       `json:"id"`
	MemberID       uuid.UUID       `json:"member_id"`
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Direction      int             `json:"direction"`
	IdempotencyKey string          `json:"idempotency_key"`
	RefType        string          `json:"ref_type"`
	RefID          uuid.UUID       `json:"ref_id"`
	RecordedBy     string          `json:"recorded_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (h *FundHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit := parsePositiveInt(r.URL.Query().Get("limit"), 50, 200)
	offset := parsePositiveInt(r.URL.Query().Get("offset"), 0, 1<<30)

	entries, total, err := h.ledger.GetByFund(r.Context(), fundID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("ledger listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]ledgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = ledgerEntryDTO{
			ID:             e.ID,
			MemberID:       e.MemberID,
			Kind:           string(e.Kind),
			Amount:         e.Amount,
			Direction:      e.Kind.Direction(),
			IdempotencyKey: e.IdempotencyKey,
			RefType:        string(e.RefType),
			RefID:          e.RefID,
			RecordedBy:     e.RecordedBy,
			CreatedAt:      e.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"entries": dtos,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// Balance reports the fund's current pool balance, computed inside a
// transaction so it is a consistent ledger snapshot.
func (h *FundHandler) Balance(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if _, err := h.funds.GetByID(r.Context(), fundID); err != nil {
		RespondDomainError(w, err)
		return
	}

	tx, err := h.db.BeginTx(r.Context(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		logging.FromContext(r.Context()).Error("balance tx begin failed", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	defer tx.Rollback()

	balance, err := h.ledger.PoolBalance(r.Context(), tx, fundID)
	if err != nil {
		logging.FromContext(r.Context()).Error("pool balance query failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"fund_id":      fundID,
		"pool_balance": balance,
	})
}

func parsePositiveInt(s string, def, max int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
