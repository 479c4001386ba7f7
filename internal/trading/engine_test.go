package trading_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
	"github.com/papertrade/engine/internal/movement"
	"github.com/papertrade/engine/internal/trading"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEngine creates an engine over a catalog listing X at 50.
func newTestEngine(t *testing.T) *trading.Engine {
	t.Helper()
	policy, err := movement.NewPolicy(d(0.05), d(1), rand.NewSource(1))
	if err != nil {
		t.Fatalf("new policy failed: %v", err)
	}
	cat := catalog.New(policy)
	if _, err := cat.Add("X", "Example Corp", d(50)); err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	return trading.NewEngine(cat, nil)
}

func register(t *testing.T, e *trading.Engine, name string, balance float64) string {
	t.Helper()
	a, err := e.Register(name, d(balance))
	if err != nil {
		t.Fatalf("register %s failed: %v", name, err)
	}
	return a.ID()
}

func fetch(t *testing.T, e *trading.Engine, id string) *ledger.Account {
	t.Helper()
	a, err := e.Account(id)
	if err != nil {
		t.Fatalf("account %s lookup failed: %v", id, err)
	}
	return a
}

func TestEngine_BuyHappyPath(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	tx, err := e.Buy(id, "X", 10)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	a := fetch(t, e, id)
	if !a.Balance().Equal(d(500)) {
		t.Errorf("expected balance 500, got %s", a.Balance())
	}
	if got := a.Holdings().Quantity("X"); got != 10 {
		t.Errorf("expected 10 units of X, got %d", got)
	}
	history := a.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Kind != ledger.KindBuy || !history[0].PricePerUnit.Equal(d(50)) {
		t.Errorf("unexpected record: %+v", history[0])
	}
	if !tx.CashEffect().Equal(d(-500)) {
		t.Errorf("buy cash effect should be -500, got %s", tx.CashEffect())
	}
}

func TestEngine_SellAfterBuy(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	if _, err := e.Buy(id, "X", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if err := e.Catalog().UpdatePrice("X", d(60)); err != nil {
		t.Fatalf("price update failed: %v", err)
	}

	tx, err := e.Sell(id, "X", 4)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	a := fetch(t, e, id)
	if !a.Balance().Equal(d(740)) {
		t.Errorf("expected balance 740, got %s", a.Balance())
	}
	if got := a.Holdings().Quantity("X"); got != 6 {
		t.Errorf("expected 6 units of X, got %d", got)
	}
	if len(a.History()) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(a.History()))
	}
	if !tx.CashEffect().Equal(d(240)) {
		t.Errorf("sell cash effect should be +240, got %s", tx.CashEffect())
	}
}

func TestEngine_BuyInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)
	e.Catalog().UpdatePrice("X", d(60))

	_, err := e.Buy(id, "X", 100) // costs 6000
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	a := fetch(t, e, id)
	if !a.Balance().Equal(d(1000)) {
		t.Errorf("balance changed after rejected buy: %s", a.Balance())
	}
	if !a.Holdings().IsEmpty() {
		t.Error("holdings changed after rejected buy")
	}
	if len(a.History()) != 0 {
		t.Error("rejected buy must not be recorded")
	}
}

func TestEngine_SellInsufficientHoldingsLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	if _, err := e.Buy(id, "X", 5); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	balanceBefore := fetch(t, e, id).Balance()

	_, err := e.Sell(id, "X", 10)
	if !errors.Is(err, ledger.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}

	a := fetch(t, e, id)
	if !a.Balance().Equal(balanceBefore) {
		t.Errorf("balance changed after rejected sell: %s", a.Balance())
	}
	if got := a.Holdings().Quantity("X"); got != 5 {
		t.Errorf("holdings changed after rejected sell: %d", got)
	}
	if len(a.History()) != 1 {
		t.Error("rejected sell must not be recorded")
	}
}

func TestEngine_TradeUnknownSymbol(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	if _, err := e.Buy(id, "ZZZ", 1); !errors.Is(err, catalog.ErrInstrumentNotFound) {
		t.Errorf("buy: expected ErrInstrumentNotFound, got %v", err)
	}
	if _, err := e.Sell(id, "ZZZ", 1); !errors.Is(err, catalog.ErrInstrumentNotFound) {
		t.Errorf("sell: expected ErrInstrumentNotFound, got %v", err)
	}
	a := fetch(t, e, id)
	if !a.Balance().Equal(d(1000)) || !a.Holdings().IsEmpty() {
		t.Error("failed trades must not touch the account")
	}
}

func TestEngine_TradeNonPositiveQuantity(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	for _, qty := range []int64{0, -1} {
		if _, err := e.Buy(id, "X", qty); !errors.Is(err, ledger.ErrInvalidArgument) {
			t.Errorf("buy %d: expected ErrInvalidArgument, got %v", qty, err)
		}
		if _, err := e.Sell(id, "X", qty); !errors.Is(err, ledger.ErrInvalidArgument) {
			t.Errorf("sell %d: expected ErrInvalidArgument, got %v", qty, err)
		}
	}
}

func TestEngine_TradeUnknownAccount(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Buy("no-such-id", "X", 1); !errors.Is(err, trading.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestEngine_AccountReturnsSnapshot(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)
	e.Buy(id, "X", 10)

	// Mutating a returned account must not leak into engine state.
	got := fetch(t, e, id)
	got.Deposit(d(9999))
	got.AddHolding("X", 500)
	got.Record(ledger.Transaction{})

	again := fetch(t, e, id)
	if !again.Balance().Equal(d(500)) {
		t.Errorf("balance leaked through snapshot: %s", again.Balance())
	}
	if qty := again.Holdings().Quantity("X"); qty != 10 {
		t.Errorf("holdings leaked through snapshot: %d", qty)
	}
	if len(again.History()) != 1 {
		t.Errorf("history leaked through snapshot: %d entries", len(again.History()))
	}
}

func TestEngine_ConcurrentTradesAndReads(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000000)

	// Readers walk balance, holdings, history, and total value while a
	// writer trades. Snapshots must keep this safe under the race detector.
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 200; i++ {
			e.Buy(id, "X", 2)
			e.Sell(id, "X", 1)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				a, err := e.Account(id)
				if err != nil {
					return
				}
				a.Balance()
				a.Holdings().Snapshot()
				a.History()
				a.TotalValue(e.Catalog().Price)
			}
		}()
	}
	wg.Wait()

	a := fetch(t, e, id)
	if got := a.Holdings().Quantity("X"); got != 200 {
		t.Errorf("expected 200 units after 200 net buys, got %d", got)
	}
	if len(a.History()) != 400 {
		t.Errorf("expected 400 history entries, got %d", len(a.History()))
	}
}

func TestEngine_RecordedPriceMatchesDebit(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	tx, err := e.Buy(id, "X", 3)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	// The balance delta must equal the recorded transaction's total,
	// whatever price the catalog reported at execution time.
	debit := d(1000).Sub(fetch(t, e, id).Balance())
	if !debit.Equal(tx.TotalValue()) {
		t.Errorf("debit %s does not match recorded total %s", debit, tx.TotalValue())
	}
}

func TestEngine_CashConservation(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 1000)

	e.Buy(id, "X", 10)
	e.Catalog().UpdatePrice("X", d(60))
	e.Sell(id, "X", 4)
	e.Catalog().UpdatePrice("X", d(45.50))
	e.Buy(id, "X", 2)
	e.Sell(id, "X", 8)

	// Final cash must equal the opening balance plus the sum of all
	// recorded cash effects.
	a := fetch(t, e, id)
	sum := decimal.Zero
	for _, tx := range a.History() {
		sum = sum.Add(tx.CashEffect())
	}
	want := d(1000).Add(sum)
	if !a.Balance().Equal(want) {
		t.Errorf("cash not conserved: balance %s, want %s", a.Balance(), want)
	}

	// Held quantity must equal net bought minus sold.
	var net int64
	for _, tx := range a.History() {
		if tx.Kind == ledger.KindBuy {
			net += tx.Quantity
		} else {
			net -= tx.Quantity
		}
	}
	if got := a.Holdings().Quantity("X"); got != net {
		t.Errorf("holdings not conserved: have %d, net trades say %d", got, net)
	}
}

func TestEngine_PurchaseCostAndSaleRevenue(t *testing.T) {
	e := newTestEngine(t)

	cost, err := e.PurchaseCost("X", 10)
	if err != nil {
		t.Fatalf("purchase cost failed: %v", err)
	}
	if !cost.Equal(d(500)) {
		t.Errorf("expected cost 500, got %s", cost)
	}

	revenue, err := e.SaleRevenue("X", 10)
	if err != nil {
		t.Fatalf("sale revenue failed: %v", err)
	}
	if !revenue.Equal(d(500)) {
		t.Errorf("expected revenue 500, got %s", revenue)
	}

	if _, err := e.PurchaseCost("X", 0); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Errorf("zero quantity: got %v", err)
	}
	if _, err := e.PurchaseCost("ZZZ", 1); !errors.Is(err, catalog.ErrInstrumentNotFound) {
		t.Errorf("unknown symbol: got %v", err)
	}
}

func TestEngine_RegisterDuplicateName(t *testing.T) {
	e := newTestEngine(t)
	register(t, e, "alice", 1000)

	if _, err := e.Register("ALICE", d(500)); !errors.Is(err, trading.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestEngine_DepositWithdraw(t *testing.T) {
	e := newTestEngine(t)
	id := register(t, e, "alice", 100)

	if err := e.Deposit(id, d(50)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := e.Withdraw(id, d(25)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := fetch(t, e, id).Balance(); !got.Equal(d(125)) {
		t.Errorf("expected 125, got %s", got)
	}

	if err := e.Withdraw(id, d(1000)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := e.Deposit("no-such-id", d(1)); !errors.Is(err, trading.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestEngine_SimulateMovementTouchesEveryInstrument(t *testing.T) {
	e := newTestEngine(t)
	e.Catalog().Add("Y", "Second Corp", d(200))

	quotes := e.SimulateMovement()
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	for _, q := range quotes {
		current, err := e.Catalog().Price(q.Symbol)
		if err != nil {
			t.Fatalf("price lookup failed: %v", err)
		}
		if !current.Equal(q.Price) {
			t.Errorf("quote %s disagrees with catalog: %s vs %s", q.Symbol, q.Price, current)
		}
	}
}
