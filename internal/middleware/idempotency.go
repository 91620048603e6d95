package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/handler"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/repository"
)

type idempotencyRepository interface {
	Reserve(ctx context.Context, rec *repository.IdempotencyRecord) (bool, *repository.IdempotencyRecord, error)
	TakeOver(ctx context.Context, fundID uuid.UUID, key, endpoint, requestHash string, staleBefore, expiresAt time.Time) (bool, error)
	Complete(ctx context.Context, fundID uuid.UUID, key, endpoint string, statusCode int, body []byte) error
	Release(ctx context.Context, fundID uuid.UUID, key, endpoint string) error
}

type IdempotencyConfig struct {
	Retention       time.Duration
	InflightTimeout time.Duration
}

// Idempotency is the write gateway for fund-scoped mutations. Every write
// carries an Idempotency-Key; the first request under a (fund, key, endpoint)
// triple reserves the key and executes, later requests with the same payload
// replay the stored response verbatim, and a different payload under the same
// key is rejected. A reservation whose owner died is taken over once it is
// older than the in-flight timeout.
func Idempotency(repo idempotencyRepository, cfg IdempotencyConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			fundID, err := uuid.Parse(r.PathValue("fund_id"))
			if err != nil {
				handler.RespondValidationError(w, []handler.FieldError{
					{Field: "fund_id", Message: "must be a valid UUID"},
				})
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			endpoint := r.Method + " " + r.URL.Path
			reqHash := computeHash(r.Method, r.URL.Path, body)
			log := logging.FromContext(r.Context())

			now := time.Now().UTC()
			created, existing, err := repo.Reserve(r.Context(), &repository.IdempotencyRecord{
				FundID:      fundID,
				Key:         key,
				Endpoint:    endpoint,
				RequestHash: reqHash,
				CreatedAt:   now,
				ExpiresAt:   now.Add(cfg.Retention),
			})
			if err != nil {
				log.Error("idempotency reservation failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}

			if !created {
				if existing == nil {
					// Row expired between the losing insert and the read; let
					// the client retry rather than guess.
					handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
					return
				}
				if existing.RequestHash != reqHash {
					handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
					return
				}

				if existing.Status == repository.IdempotencyCompleted {
					replay(w, r, existing)
					return
				}

				// Same payload, still in flight. Take over only when the
				// original request is presumed dead.
				staleBefore := now.Add(-cfg.InflightTimeout)
				taken, err := repo.TakeOver(r.Context(), fundID, key, endpoint, reqHash, staleBefore, now.Add(cfg.Retention))
				if err != nil {
					log.Error("idempotency takeover failed", "error", err, "idempotency_key", key)
					handler.RespondAppError(w, handler.ErrInternalError, nil)
					return
				}
				if !taken {
					handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
					return
				}
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				// Do not pin a server-side failure to the key; the client
				// may retry with the same key once the fault clears.
				if err := repo.Release(r.Context(), fundID, key, endpoint); err != nil {
					log.Error("idempotency release failed", "error", err, "idempotency_key", key)
				}
				return
			}

			if err := repo.Complete(r.Context(), fundID, key, endpoint, rec.statusCode, rec.body.Bytes()); err != nil {
				log.Error("idempotency completion failed", "error", err, "idempotency_key", key)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, rec *repository.IdempotencyRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotent-Replayed", "true")
	status := http.StatusOK
	if rec.StatusCode.Valid {
		status = int(rec.StatusCode.Int32)
	}
	w.WriteHeader(status)
	if _, err := w.Write(rec.ResponseBody); err != nil {
		log := logging.FromContext(r.Context())
		log.Error("failed to write idempotent replay", "error", err, "idempotency_key", rec.Key)
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
