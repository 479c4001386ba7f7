package trading

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/store"
)

// API exposes the engine's operations over HTTP. It is the thin caller the
// console layer reduces to: it invokes engine operations, persists the
// affected state out-of-band, and reports results as JSON.
type API struct {
	engine         *Engine
	store          store.Store
	defaultBalance decimal.Decimal
}

// NewAPI creates the HTTP surface. defaultBalance is used when a
// registration omits the initial balance.
func NewAPI(engine *Engine, st store.Store, defaultBalance decimal.Decimal) *API {
	return &API{engine: engine, store: st, defaultBalance: defaultBalance}
}

// Routes mounts all API handlers on a chi router.
func (api *API) Routes(r chi.Router) {
	r.Post("/accounts", api.RegisterAccount)
	r.Get("/accounts/{accountID}", api.GetAccount)
	r.Get("/accounts/{accountID}/history", api.GetHistory)
	r.Post("/accounts/{accountID}/deposit", api.Deposit)
	r.Post("/accounts/{accountID}/withdraw", api.Withdraw)

	r.Post("/trade", api.ExecuteTrade)
	r.Get("/quote", api.Quote)

	r.Get("/instruments", api.ListInstruments)
	r.Post("/instruments", api.AddInstrument)
	r.Get("/instruments/{symbol}/history", api.InstrumentHistory)
	r.Put("/instruments/{symbol}/price", api.UpdatePrice)
	r.Post("/simulate", api.Simulate)
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for account registration. A nil
// InitialBalance means the field was absent and the server default
// applies; an explicit 0 opens an empty account.
type RegisterRequest struct {
	Name           string           `json:"name"`
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Kind      string `json:"kind"` // "BUY" or "SELL"
	Quantity  int64  `json:"quantity"`
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	Transaction ledger.Transaction `json:"transaction"`
	CashEffect  decimal.Decimal    `json:"cash_effect"`
	Account     AccountSummary     `json:"account"`
}

// AccountSummary is the account snapshot included in responses.
type AccountSummary struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	CashBalance decimal.Decimal  `json:"cash_balance"`
	Holdings    map[string]int64 `json:"holdings"`
	TotalValue  decimal.Decimal  `json:"total_value"`
}

// AmountRequest is the JSON body for deposit/withdraw.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// QuoteResponse is the JSON body for GET /quote.
type QuoteResponse struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	PurchaseCost decimal.Decimal `json:"purchase_cost"`
	SaleRevenue  decimal.Decimal `json:"sale_revenue"`
}

// AddInstrumentRequest is the JSON body for POST /instruments.
type AddInstrumentRequest struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// UpdatePriceRequest is the JSON body for PUT /instruments/{symbol}/price.
type UpdatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// --- HTTP Handlers ---

// RegisterAccount handles POST /api/v1/accounts
func (api *API) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance := api.defaultBalance
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}

	a, err := api.engine.Register(req.Name, balance)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	api.saveAccount(r, a)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(api.summarize(a))
}

// GetAccount handles GET /api/v1/accounts/{accountID}
func (api *API) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := api.engine.Account(chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.summarize(a))
}

// GetHistory handles GET /api/v1/accounts/{accountID}/history
func (api *API) GetHistory(w http.ResponseWriter, r *http.Request) {
	a, err := api.engine.Account(chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	history := a.History()
	if history == nil {
		history = []ledger.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// Deposit handles POST /api/v1/accounts/{accountID}/deposit
func (api *API) Deposit(w http.ResponseWriter, r *http.Request) {
	api.cashOp(w, r, api.engine.Deposit)
}

// Withdraw handles POST /api/v1/accounts/{accountID}/withdraw
func (api *API) Withdraw(w http.ResponseWriter, r *http.Request) {
	api.cashOp(w, r, api.engine.Withdraw)
}

func (api *API) cashOp(w http.ResponseWriter, r *http.Request, op func(string, decimal.Decimal) error) {
	accountID := chi.URLParam(r, "accountID")

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := op(accountID, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	a, err := api.engine.Account(accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	api.saveAccount(r, a)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.summarize(a))
}

// ExecuteTrade handles POST /api/v1/trade
func (api *API) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	var t *ledger.Transaction
	var err error
	switch ledger.Kind(req.Kind) {
	case ledger.KindBuy:
		t, err = api.engine.Buy(req.AccountID, req.Symbol, req.Quantity)
	case ledger.KindSell:
		t, err = api.engine.Sell(req.AccountID, req.Symbol, req.Quantity)
	default:
		writeError(w, "kind must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	a, err := api.engine.Account(req.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	api.saveAccount(r, a)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TradeResponse{
		Transaction: *t,
		CashEffect:  t.CashEffect(),
		Account:     api.summarize(a),
	})
}

// Quote handles GET /api/v1/quote?symbol=...&quantity=...
// Pure price preview; mutates nothing.
func (api *API) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		writeError(w, "quantity must be an integer", http.StatusBadRequest)
		return
	}

	cost, err := api.engine.PurchaseCost(symbol, quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	revenue, err := api.engine.SaleRevenue(symbol, quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	normalized, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	price, err := api.engine.Catalog().Price(normalized)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QuoteResponse{
		Symbol:       normalized,
		Quantity:     quantity,
		PricePerUnit: price,
		PurchaseCost: cost,
		SaleRevenue:  revenue,
	})
}

// ListInstruments handles GET /api/v1/instruments
func (api *API) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments := api.engine.Catalog().Snapshot()

	// Trim histories from the listing; the history endpoint serves them.
	type listing struct {
		Symbol string          `json:"symbol"`
		Name   string          `json:"name"`
		Price  decimal.Decimal `json:"current_price"`
	}
	out := make([]listing, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, listing{Symbol: inst.Symbol, Name: inst.Name, Price: inst.CurrentPrice})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// AddInstrument handles POST /api/v1/instruments
func (api *API) AddInstrument(w http.ResponseWriter, r *http.Request) {
	var req AddInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	inst, err := api.engine.Catalog().Add(req.Symbol, req.Name, req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	api.saveCatalog(r)
	metrics.Instruments.Set(float64(api.engine.Catalog().Len()))

	slog.Info("instrument listed", "symbol", inst.Symbol, "price", inst.CurrentPrice.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(inst)
}

// InstrumentHistory handles GET /api/v1/instruments/{symbol}/history
func (api *API) InstrumentHistory(w http.ResponseWriter, r *http.Request) {
	inst, err := api.engine.Catalog().Instrument(chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst.History)
}

// UpdatePrice handles PUT /api/v1/instruments/{symbol}/price
func (api *API) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req UpdatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := api.engine.Catalog().UpdatePrice(symbol, req.Price); err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.PriceUpdates.WithLabelValues("manual").Inc()
	api.saveCatalog(r)

	inst, err := api.engine.Catalog().Instrument(symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst)
}

// Simulate handles POST /api/v1/simulate
func (api *API) Simulate(w http.ResponseWriter, r *http.Request) {
	quotes := api.engine.SimulateMovement()
	api.saveCatalog(r)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quotes)
}

// --- Helpers ---

func (api *API) summarize(a *ledger.Account) AccountSummary {
	return AccountSummary{
		ID:          a.ID(),
		Name:        a.Name(),
		CashBalance: a.Balance(),
		Holdings:    a.Holdings().Snapshot(),
		TotalValue:  a.TotalValue(api.engine.Catalog().Price),
	}
}

// saveAccount persists an account after a successful mutation. Persistence
// is out-of-band: a failed save is reported in the log, never by undoing
// in-memory state.
func (api *API) saveAccount(r *http.Request, a *ledger.Account) {
	if err := api.store.SaveAccount(r.Context(), a); err != nil {
		slog.Warn("account save failed", "account", a.ID(), "err", err)
	}
}

func (api *API) saveCatalog(r *http.Request) {
	if err := api.store.SaveCatalog(r.Context(), api.engine.Catalog().Snapshot()); err != nil {
		slog.Warn("catalog save failed", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeDomainError maps ledger/catalog errors to HTTP statuses: caller
// errors → 400, unknown lookups → 404, business-rule rejections → 409.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, catalog.ErrInvalidPrice):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrInstrumentNotFound), errors.Is(err, ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientHoldings),
		errors.Is(err, catalog.ErrDuplicateInstrument),
		errors.Is(err, ErrDuplicateName):
		status = http.StatusConflict
	}
	writeError(w, err.Error(), status)
}
