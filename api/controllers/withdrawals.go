package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockroom-backend/api/responses"
	"github.com/angelmondragon/stockroom-backend/api/validators"
	"github.com/angelmondragon/stockroom-backend/internal/stock"
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

const (
	maxPartyLength  = 120
	maxHistoryLimit = 1000
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type withdrawalRequest struct {
	ProductID    uuid.UUID `json:"product_id" validate:"required"`
	Quantity     int       `json:"quantity"`
	Destination  string    `json:"destination" validate:"notblank,max=120"`
	Supervisor   string    `json:"supervisor" validate:"notblank,max=120"`
	PhotoURL     *string   `json:"photo_url,omitempty" validate:"omitempty,url"`
	SignatureURL *string   `json:"signature_url,omitempty" validate:"omitempty,url"`
}

// CreateWithdrawal records a single kiosk withdrawal.
func CreateWithdrawal(engine stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		var payload withdrawalRequest
		if err := validators.DecodeJSON(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, payload.ProductID.String())
		}
		result, err := engine.ProcessWithdrawal(ctx, stock.WithdrawalRequest{
			ProductID:    payload.ProductID,
			Quantity:     payload.Quantity,
			Destination:  validators.SanitizeString(payload.Destination, maxPartyLength),
			Supervisor:   validators.SanitizeString(payload.Supervisor, maxPartyLength),
			PhotoURL:     payload.PhotoURL,
			SignatureURL: payload.SignatureURL,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Items        []stock.CheckoutItem `json:"items" validate:"required,min=1"`
	Destination  string               `json:"destination" validate:"notblank,max=120"`
	Supervisor   string               `json:"supervisor" validate:"notblank,max=120"`
	PhotoURL     *string              `json:"photo_url,omitempty" validate:"omitempty,url"`
	SignatureURL *string              `json:"signature_url,omitempty" validate:"omitempty,url"`
}

// Checkout withdraws every line of the cart or none of them.
func Checkout(engine stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSON(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := engine.ProcessMultipleWithdrawals(r.Context(), stock.CheckoutRequest{
			Items:        payload.Items,
			Destination:  validators.SanitizeString(payload.Destination, maxPartyLength),
			Supervisor:   validators.SanitizeString(payload.Supervisor, maxPartyLength),
			PhotoURL:     payload.PhotoURL,
			SignatureURL: payload.SignatureURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"withdrawals": results})
	}
}

func ListWithdrawals(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal service unavailable"))
			return
		}

		filters, err := parseWithdrawalFilters(r, svc.Location())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetWithdrawal(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		withdrawal, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawal)
	}
}

// ExportWithdrawals streams the filtered history as an XLSX attachment. The
// workbook is built in memory first so failures still get a JSON error.
func ExportWithdrawals(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal service unavailable"))
			return
		}

		filters, err := parseWithdrawalFilters(r, svc.Location())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var buf bytes.Buffer
		if err := svc.Export(r.Context(), filters, &buf); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, withdrawals.ExportFileName(time.Now(), svc.Location())))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func parseWithdrawalFilters(r *http.Request, loc *time.Location) (withdrawals.Filters, error) {
	query := r.URL.Query()
	filters := withdrawals.Filters{
		Search:      validators.SanitizeString(query.Get("q"), maxPartyLength),
		Supervisor:  validators.SanitizeString(query.Get("supervisor"), maxPartyLength),
		Destination: validators.SanitizeString(query.Get("destination"), maxPartyLength),
	}

	from, to, err := parseDateRange(r, loc)
	if err != nil {
		return withdrawals.Filters{}, err
	}
	filters.DateFrom, filters.DateTo = from, to

	if raw := strings.TrimSpace(query.Get("kind")); raw != "" {
		kind, err := enums.ParseMovementKind(raw)
		if err != nil {
			return withdrawals.Filters{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind").WithDetails(map[string]any{"field": "kind"})
		}
		filters.Kind = &kind
	}

	productID, err := validators.ParseQueryUUID(r, "product_id")
	if err != nil {
		return withdrawals.Filters{}, err
	}
	filters.ProductID = productID

	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, maxHistoryLimit)
	if err != nil {
		return withdrawals.Filters{}, err
	}
	filters.Limit = limit
	return filters, nil
}

// parseDateRange reads date_from and date_to. A plain date_to covers the
// whole day.
func parseDateRange(r *http.Request, loc *time.Location) (*time.Time, *time.Time, error) {
	query := r.URL.Query()
	from, err := withdrawals.ParseDateBound(query.Get("date_from"), loc, false)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date_from").WithDetails(map[string]any{"field": "date_from"})
	}
	to, err := withdrawals.ParseDateBound(query.Get("date_to"), loc, true)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date_to").WithDetails(map[string]any{"field": "date_to"})
	}
	return from, to, nil
}
