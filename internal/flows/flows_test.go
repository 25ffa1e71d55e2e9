package flows

import (
	"context"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/pricing"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
)

const adminID int64 = 900

type capture struct {
	mu      sync.Mutex
	replies []flow.Reply
}

func (c *capture) Send(_ context.Context, _ int64, reply flow.Reply) error {
	c.mu.Lock()
	c.replies = append(c.replies, reply)
	c.mu.Unlock()
	return nil
}

func (c *capture) last(t *testing.T) flow.Reply {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.replies)
	return c.replies[len(c.replies)-1]
}

type fixture struct {
	engine *flow.Engine
	resp   *capture
	users  *storage.Users
	ledger *pricing.Ledger
	db     *sqlx.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := sqlx.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			telegram_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			platform TEXT NOT NULL DEFAULT '',
			whatsapp TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			payment_details TEXT NOT NULL DEFAULT '',
			registration_step TEXT NOT NULL DEFAULT 'start',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE registration_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL,
			step TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '',
			ts TIMESTAMP NOT NULL
		);
		CREATE TABLE coin_prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL, transfer_type TEXT NOT NULL,
			amount INTEGER NOT NULL, price INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (platform, transfer_type, amount)
		);
		CREATE TABLE price_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			admin_id INTEGER NOT NULL, platform TEXT NOT NULL,
			transfer_type TEXT NOT NULL, amount INTEGER NOT NULL,
			old_price INTEGER NOT NULL, new_price INTEGER NOT NULL,
			changed_at TIMESTAMP NOT NULL
		);`)
	require.NoError(t, err)

	for _, row := range []struct {
		platform domain.Platform
		tt       domain.TransferType
		price    int64
	}{
		{domain.PlatformPlayStation, domain.TransferNormal, 5600},
		{domain.PlatformPlayStation, domain.TransferInstant, 5300},
		{domain.PlatformPC, domain.TransferNormal, 6100},
		{domain.PlatformPC, domain.TransferInstant, 5800},
	} {
		_, err := db.Exec(`INSERT INTO coin_prices (platform, transfer_type, amount, price, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			row.platform, row.tt, domain.ReferenceAmount, row.price)
		require.NoError(t, err)
	}

	users := storage.NewUsers(db)
	ledger := pricing.NewLedger(storage.NewPrices(db))
	resp := &capture{}
	engine, err := flow.NewEngine(flow.NewStore(), resp,
		flow.Options{BusyNotice: messages.Busy},
		Registration(users),
		Sell(users, ledger),
		Admin(ledger, adminID),
		Profile(users),
	)
	require.NoError(t, err)
	return &fixture{engine: engine, resp: resp, users: users, ledger: ledger, db: db}
}

func (f *fixture) send(t *testing.T, userID int64, trig flow.Trigger) flow.Result {
	t.Helper()
	res, _ := f.engine.Dispatch(context.Background(), flow.NewEvent(userID, "tester", trig))
	return res
}

func (f *fixture) register(t *testing.T, userID int64) {
	t.Helper()
	f.send(t, userID, flow.Command("start"))
	f.send(t, userID, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformPlayStation)))
	f.send(t, userID, flow.Text("01012345678"))
	f.send(t, userID, flow.Callback(keyboards.KeyPayMethod, string(domain.PayVodafoneCash)))
	res := f.send(t, userID, flow.Text("01012345678"))
	require.Equal(t, flow.Ended, res.Outcome)
}

func TestRegistrationHappyPath(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)

	u, err := f.users.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, u.Registered())
	require.Equal(t, domain.PlatformPlayStation, u.Platform)
	require.Equal(t, "01012345678", u.Whatsapp)
	require.Equal(t, domain.PayVodafoneCash, u.PaymentMethod)

	require.Contains(t, f.resp.last(t).Text, messages.RegistrationDone)
	require.False(t, f.engine.Store().Has(1, RegistrationFlow))
}

func TestRegistrationPhoneRejections(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, flow.Command("start"))
	f.send(t, 1, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformPC)))

	res := f.send(t, 1, flow.Text("abc"))
	require.Equal(t, StateContactEntry, res.State)
	require.Equal(t, messages.PhoneSymbolsHint, f.resp.last(t).Text)

	f.send(t, 1, flow.Text("0101234"))
	require.Equal(t, messages.PhoneLengthHint, f.resp.last(t).Text)

	f.send(t, 1, flow.Text("01912345678"))
	require.Equal(t, messages.PhoneCarrierHint, f.resp.last(t).Text)

	res = f.send(t, 1, flow.Text("01012345678"))
	require.Equal(t, StatePaymentChoice, res.State)
}

func TestRegistrationCompletedStartShowsMenu(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)

	res := f.send(t, 1, flow.Command("start"))
	require.Equal(t, flow.Ended, res.Outcome)
	require.Equal(t, messages.Menu, f.resp.last(t).Text)
}

func TestRegistrationInterruptedContinue(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, flow.Command("start"))
	f.send(t, 1, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformXbox)))
	f.send(t, 1, flow.Text("01012345678"))

	// Simulate a restart: memory gone, checkpoint persisted.
	f.engine.Store().DropUser(1)

	res := f.send(t, 1, flow.Command("start"))
	require.Equal(t, StateInterrupted, res.State)
	require.Equal(t, messages.InterruptedQuestion, f.resp.last(t).Text)

	res = f.send(t, 1, flow.Callback(keyboards.KeyRegContinue, ""))
	require.Equal(t, StatePaymentChoice, res.State, "continue resumes at the persisted step")
	require.Equal(t, messages.ChoosePaymentMethod, f.resp.last(t).Text)
}

func TestRegistrationInterruptedRestart(t *testing.T) {
	f := newFixture(t)
	f.send(t, 1, flow.Command("start"))
	f.send(t, 1, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformXbox)))
	f.engine.Store().DropUser(1)

	f.send(t, 1, flow.Command("start"))
	res := f.send(t, 1, flow.Callback(keyboards.KeyRegRestart, ""))
	require.Equal(t, StatePlatformChoice, res.State)

	step, err := f.users.Step(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.StepStart, step)
}

func TestSellRequiresRegistration(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, 1, flow.Command("sell"))
	require.Equal(t, flow.Ended, res.Outcome)
	require.Equal(t, messages.SellNeedsRegistration, f.resp.last(t).Text)
	_, active := f.engine.Store().ActiveFlow(1)
	require.False(t, active, "rejected entry must leave no state behind")
}

func TestSellHappyPathQuote(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)

	f.send(t, 1, flow.Command("sell"))
	f.send(t, 1, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformPlayStation)))
	f.send(t, 1, flow.Callback(keyboards.KeyTransfer, string(domain.TransferNormal)))
	res := f.send(t, 1, flow.Text("900"))
	require.Equal(t, flow.Ended, res.Outcome)

	summary := f.resp.last(t).Text
	require.Contains(t, summary, "900k coins")
	require.Contains(t, summary, "5040 EGP", "900k at 5600 per million")
	require.Regexp(t, regexp.MustCompile(`Order ID: [0-9a-f-]{36}`), summary)
	require.False(t, f.engine.Store().Has(1, SellFlow))
}

func TestSellAmountRejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)
	f.send(t, 1, flow.Command("sell"))
	f.send(t, 1, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformPC)))
	f.send(t, 1, flow.Callback(keyboards.KeyTransfer, string(domain.TransferInstant)))

	f.send(t, 1, flow.Text("100k"))
	require.Equal(t, messages.AmountSymbolsHint, f.resp.last(t).Text)

	f.send(t, 1, flow.Text("9"))
	require.Equal(t, messages.AmountLengthHint, f.resp.last(t).Text)

	f.send(t, 1, flow.Text("30"))
	require.Equal(t, messages.AmountRangeHint, f.resp.last(t).Text)

	res := f.send(t, 1, flow.Text("100"))
	require.Equal(t, flow.Ended, res.Outcome)
}

func TestAdminUnauthorized(t *testing.T) {
	f := newFixture(t)
	res := f.send(t, 1, flow.Command("admin"))
	require.Equal(t, flow.Ended, res.Outcome)
	require.Equal(t, messages.AdminOnly, f.resp.last(t).Text)
	_, active := f.engine.Store().ActiveFlow(1)
	require.False(t, active)
}

func TestAdminPriceEdit(t *testing.T) {
	f := newFixture(t)
	f.send(t, adminID, flow.Command("admin"))
	f.send(t, adminID, flow.Callback(keyboards.KeyAdminEdit, ""))
	f.send(t, adminID, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformPC)))
	f.send(t, adminID, flow.Callback(keyboards.KeyTransfer, string(domain.TransferNormal)))
	require.Contains(t, f.resp.last(t).Text, "6100")

	f.send(t, adminID, flow.Text("abc"))
	require.Equal(t, messages.AdminPriceFormat, f.resp.last(t).Text)

	f.send(t, adminID, flow.Text("999"))
	require.Equal(t, messages.AdminPriceRange, f.resp.last(t).Text)

	res := f.send(t, adminID, flow.Text("6,400"))
	require.Equal(t, flow.Ended, res.Outcome)
	require.Contains(t, f.resp.last(t).Text, "6100 -> 6400")

	p, err := f.ledger.Read(context.Background(), domain.PlatformPC, domain.TransferNormal)
	require.NoError(t, err)
	require.Equal(t, int64(6400), p.Price)

	audit, err := f.ledger.Audit(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Equal(t, adminID, audit[0].AdminID)
}

func TestAdminReadOnlyViews(t *testing.T) {
	f := newFixture(t)
	f.send(t, adminID, flow.Command("admin"))

	res := f.send(t, adminID, flow.Callback(keyboards.KeyAdminView, ""))
	require.Equal(t, StateAdminMenu, res.State)
	require.Contains(t, f.resp.last(t).Text, "PC / Normal: 6100")

	res = f.send(t, adminID, flow.Callback(keyboards.KeyAdminAudit, ""))
	require.Equal(t, StateAdminMenu, res.State)
	require.Equal(t, "No price changes recorded yet.", f.resp.last(t).Text)
}

func TestProfileDoubleConfirmedErase(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)

	f.send(t, 1, flow.Command("profile"))
	require.Contains(t, f.resp.last(t).Text, messages.ProfileDeleteAsk)

	f.send(t, 1, flow.Callback(keyboards.KeyProfileDelete, ""))
	require.Equal(t, messages.ProfileDeleteConfirm, f.resp.last(t).Text)

	// First confirmation alone must not delete anything.
	_, err := f.users.Get(context.Background(), 1)
	require.NoError(t, err)

	res := f.send(t, 1, flow.Callback(keyboards.KeyProfileReally, ""))
	require.Equal(t, flow.Ended, res.Outcome)
	_, err = f.users.Get(context.Background(), 1)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProfileKeepAborts(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)
	f.send(t, 1, flow.Command("profile"))
	f.send(t, 1, flow.Callback(keyboards.KeyProfileDelete, ""))

	res := f.send(t, 1, flow.Callback(keyboards.KeyProfileKeep, ""))
	require.Equal(t, flow.Ended, res.Outcome)
	_, err := f.users.Get(context.Background(), 1)
	require.NoError(t, err)
}

func TestCancelFallbackEndsAnyFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)
	f.send(t, 1, flow.Command("sell"))
	f.send(t, 1, flow.Callback(keyboards.KeyPlatform, string(domain.PlatformPC)))

	res := f.send(t, 1, flow.Command("cancel"))
	require.Equal(t, flow.Ended, res.Outcome)
	require.Equal(t, messages.Cancelled, f.resp.last(t).Text)
	require.False(t, f.engine.Store().Has(1, SellFlow))
}

func TestBusyNoticeAcrossFlowFamilies(t *testing.T) {
	f := newFixture(t)
	f.register(t, 1)
	f.send(t, 1, flow.Command("sell"))

	res := f.send(t, 1, flow.Command("profile"))
	require.Equal(t, SellFlow, res.Flow, "sell keeps ownership")
	require.Equal(t, messages.Busy, f.resp.last(t).Text)
}
