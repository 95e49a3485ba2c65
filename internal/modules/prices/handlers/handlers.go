// Package handlers provides HTTP handlers for price updates.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aristath/tracker/internal/domain"
	"github.com/aristath/tracker/internal/httpapi"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Propagator applies prices to positions
type Propagator interface {
	Propagate(ctx context.Context, symbol string, price decimal.Decimal) domain.PropagationResult
	PropagateBatch(ctx context.Context, updates []domain.PriceUpdate) domain.PropagationResult
}

// priceRequest is one {symbol, price} pair of a request body
type priceRequest struct {
	Price  *decimal.Decimal `json:"price"`
	Symbol string           `json:"symbol"`
}

func (p priceRequest) validate() error {
	if domain.NormalizeSymbol(p.Symbol) == "" {
		return httpapi.Invalid("symbol is required")
	}
	if p.Price == nil {
		return httpapi.Invalid(fmt.Sprintf("price is required for %s", p.Symbol))
	}
	if p.Price.IsNegative() {
		return httpapi.Invalid(fmt.Sprintf("price must not be negative for %s", p.Symbol))
	}
	return nil
}

// Handler handles price HTTP requests
type Handler struct {
	propagator Propagator
	log        zerolog.Logger
}

// NewHandler creates a new price handler
func NewHandler(propagator Propagator, log zerolog.Logger) *Handler {
	return &Handler{
		propagator: propagator,
		log:        log.With().Str("handler", "prices").Logger(),
	}
}

// HandleUpdatePrice handles POST /api/prices with a single {symbol, price}.
// A symbol nobody holds is not an error: the report is simply empty.
func (h *Handler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, httpapi.Invalid("invalid request body: "+err.Error()))
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}

	result := h.propagator.Propagate(r.Context(), req.Symbol, *req.Price)
	h.writeResult(w, result)
}

// HandleUpdatePrices handles POST /api/prices/batch with an array of pairs.
// Each pair is validated on its own: invalid pairs are reported as INVALID_INPUT
// failures next to the propagation failures while the valid ones are applied.
func (h *Handler) HandleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	var items []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		h.writeError(w, httpapi.Invalid("invalid request body: "+err.Error()))
		return
	}
	if len(items) == 0 {
		h.writeError(w, httpapi.Invalid("at least one price is required"))
		return
	}

	updates := make([]domain.PriceUpdate, 0, len(items))
	rejected := make([]domain.PropagationFailure, 0)
	for i, item := range items {
		update, err := decodeItem(item)
		if err != nil {
			rejected = append(rejected, domain.InvalidPair(update.Symbol, fmt.Sprintf("item %d: %s", i, messageOf(err))))
			continue
		}
		updates = append(updates, update)
	}

	result := domain.PropagationResult{
		Updated:  make([]domain.Position, 0),
		Failures: make([]domain.PropagationFailure, 0),
	}
	if len(updates) > 0 {
		result = h.propagator.PropagateBatch(r.Context(), updates)
	}
	result.Failures = append(rejected, result.Failures...)
	h.writeResult(w, result)
}

// batchItem keeps the price raw so a malformed price does not hide the symbol
type batchItem struct {
	Symbol string          `json:"symbol"`
	Price  json.RawMessage `json:"price"`
}

// decodeItem parses one batch pair. The returned update carries the symbol even on error.
func decodeItem(raw json.RawMessage) (domain.PriceUpdate, error) {
	var item batchItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.PriceUpdate{}, httpapi.Invalid("expected a {symbol, price} object")
	}
	update := domain.PriceUpdate{Symbol: domain.NormalizeSymbol(item.Symbol)}

	req := priceRequest{Symbol: item.Symbol}
	if len(item.Price) > 0 && string(item.Price) != "null" {
		var price decimal.Decimal
		if err := json.Unmarshal(item.Price, &price); err != nil {
			return update, httpapi.Invalid(fmt.Sprintf("invalid price for %s", item.Symbol))
		}
		req.Price = &price
	}
	if err := req.validate(); err != nil {
		return update, err
	}
	return domain.NewPriceUpdate(item.Symbol, *req.Price), nil
}

func messageOf(err error) string {
	var coded *domain.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// writeResult answers 207 when some items failed and 200 otherwise
func (h *Handler) writeResult(w http.ResponseWriter, result domain.PropagationResult) {
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusMultiStatus
		h.log.Warn().
			Int("updated", len(result.Updated)).
			Int("failures", len(result.Failures)).
			Msg("Price update partially failed")
	}
	httpapi.WriteData(w, status, result, h.log)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	httpapi.WriteError(w, err, h.log)
}
