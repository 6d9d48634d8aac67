package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"finance-assistant/internal/finance"
	"finance-assistant/internal/history"
	"finance-assistant/internal/models"
	"finance-assistant/internal/rates"
	"finance-assistant/internal/storage"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var today = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

// fakeModel replays scripted responses and records what it was sent.
type fakeModel struct {
	replies []*schema.Message
	err     error
	panics  bool
	inputs  [][]*schema.Message
	opts    [][]model.Option
}

func (m *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, input)
	m.opts = append(m.opts, opts)
	if m.panics {
		panic("model exploded")
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return schema.AssistantMessage("ok", nil), nil
	}
	out := m.replies[0]
	m.replies = m.replies[1:]
	return out, nil
}

func toolCall(name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

type staticRates struct{}

func (staticRates) Rate(ctx context.Context, from, to, date string) (rates.Quote, error) {
	if date == "" {
		date = "2026-10-15"
	}
	return rates.Quote{From: from, To: to, Rate: 0.91234, Date: date}, nil
}

type failingHistory struct {
	history.Store
	failAppend bool
	failRecent bool
}

func (f *failingHistory) Append(ctx context.Context, userID int64, t history.Turn) error {
	if f.failAppend {
		return errors.New("history down")
	}
	return f.Store.Append(ctx, userID, t)
}

func (f *failingHistory) Recent(ctx context.Context, userID int64) ([]history.Turn, error) {
	if f.failRecent {
		return nil, errors.New("history down")
	}
	return f.Store.Recent(ctx, userID)
}

type DispatcherTestSuite struct {
	suite.Suite
	db      *storage.DB
	model   *fakeModel
	history history.Store
	d       *Dispatcher
	userID  int64
	ctx     context.Context
}

func (suite *DispatcherTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()

	u, err := db.CreateUser(suite.ctx, "alice", "", "hash")
	require.NoError(suite.T(), err)
	suite.userID = u.ID

	suite.history, err = history.NewStore(history.StoreTypeMemory)
	require.NoError(suite.T(), err)

	clock := func() time.Time { return today }
	svc := finance.NewService(db, staticRates{}, finance.WithClock(clock))
	suite.model = &fakeModel{}
	temperature, topP := float32(0.7), float32(0.8)
	suite.d = NewDispatcher(suite.model, svc, suite.history, Config{
		Temperature: &temperature, TopP: &topP, MaxTokens: 512, Now: clock,
	})
}

func (suite *DispatcherTestSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *DispatcherTestSuite) rows() []models.Transaction {
	txs, err := suite.db.ListTransactions(suite.ctx, suite.userID, "1900-01-01", "2200-01-01")
	require.NoError(suite.T(), err)
	return txs
}

func (suite *DispatcherTestSuite) turns() []history.Turn {
	turns, err := suite.history.Recent(suite.ctx, suite.userID)
	require.NoError(suite.T(), err)
	return turns
}

func (suite *DispatcherTestSuite) TestLogExpenseEndToEnd() {
	suite.model.replies = []*schema.Message{toolCall("log_expense", `{"amount": 50, "category": "food"}`)}

	reply := suite.d.Reply(suite.ctx, suite.userID, "log 50 for food")

	assert.Contains(suite.T(), reply, "Expense of $50.00 for food on 2026-10-15")
	assert.Equal(suite.T(), "Successfully logged the transaction. Expense of $50.00 for food on 2026-10-15 has been recorded.", reply)

	rows := suite.rows()
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), models.Expense, rows[0].Type)
	assert.Equal(suite.T(), "2026-10-15", rows[0].Date)

	turns := suite.turns()
	require.Len(suite.T(), turns, 2)
	assert.Equal(suite.T(), history.RoleUser, turns[0].Role)
	assert.Equal(suite.T(), "log 50 for food", turns[0].Content)
	assert.Equal(suite.T(), history.RoleAssistant, turns[1].Role)
	assert.Equal(suite.T(), reply, turns[1].Content)
}

func (suite *DispatcherTestSuite) TestModelInputAndOptions() {
	suite.d.Reply(suite.ctx, suite.userID, "hello")

	require.Len(suite.T(), suite.model.inputs, 1)
	input := suite.model.inputs[0]
	require.Len(suite.T(), input, 2)
	assert.Equal(suite.T(), schema.System, input[0].Role)
	assert.Contains(suite.T(), input[0].Content, "2026-10-15")
	assert.Contains(suite.T(), input[0].Content, fmt.Sprintf("user %d", suite.userID))
	assert.Equal(suite.T(), schema.User, input[1].Role)
	assert.Equal(suite.T(), "hello", input[1].Content)

	common := model.GetCommonOptions(nil, suite.model.opts[0]...)
	require.NotNil(suite.T(), common.Temperature)
	assert.Equal(suite.T(), float32(0.7), *common.Temperature)
	require.NotNil(suite.T(), common.TopP)
	assert.Equal(suite.T(), float32(0.8), *common.TopP)
	require.NotNil(suite.T(), common.MaxTokens)
	assert.Equal(suite.T(), 512, *common.MaxTokens)
}

func (suite *DispatcherTestSuite) TestHistoryIsSentBack() {
	suite.model.replies = []*schema.Message{
		schema.AssistantMessage("Hi there", nil),
		schema.AssistantMessage("Sure", nil),
	}
	suite.d.Reply(suite.ctx, suite.userID, "hi")
	suite.d.Reply(suite.ctx, suite.userID, "can you help?")

	input := suite.model.inputs[1]
	require.Len(suite.T(), input, 4)
	assert.Equal(suite.T(), "hi", input[1].Content)
	assert.Equal(suite.T(), schema.Assistant, input[2].Role)
	assert.Equal(suite.T(), "Hi there", input[2].Content)
	assert.Equal(suite.T(), "can you help?", input[3].Content)
}

func (suite *DispatcherTestSuite) TestFreeTextVerbatim() {
	suite.model.replies = []*schema.Message{schema.AssistantMessage("  I can help with budgets.\n", nil)}
	reply := suite.d.Reply(suite.ctx, suite.userID, "what can you do?")
	assert.Equal(suite.T(), "  I can help with budgets.\n", reply)
	assert.Empty(suite.T(), suite.rows())
}

func (suite *DispatcherTestSuite) TestUnknownOperation() {
	suite.model.replies = []*schema.Message{toolCall("delete_everything", `{"amount": 50, "category": "food"}`)}

	reply := suite.d.Reply(suite.ctx, suite.userID, "wipe it")

	assert.Equal(suite.T(), UnknownOperationReply, reply)
	assert.Empty(suite.T(), suite.rows())
}

func (suite *DispatcherTestSuite) TestIdentityComesFromSession() {
	other, err := suite.db.CreateUser(suite.ctx, "mallory", "", "hash")
	require.NoError(suite.T(), err)

	suite.model.replies = []*schema.Message{toolCall("log_expense",
		fmt.Sprintf(`{"amount": 5, "category": "coffee", "user_id": %d}`, other.ID))}
	suite.d.Reply(suite.ctx, suite.userID, "coffee 5")

	assert.Len(suite.T(), suite.rows(), 1)
	theirs, err := suite.db.ListTransactions(suite.ctx, other.ID, "1900-01-01", "2200-01-01")
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), theirs)
}

func (suite *DispatcherTestSuite) TestStringEncodedArguments() {
	suite.model.replies = []*schema.Message{toolCall("log_income", `"{\"amount\": \"1200.5\", \"source\": \"salary\", \"date\": \"2026-10-01\"}"`)}

	reply := suite.d.Reply(suite.ctx, suite.userID, "got paid")

	assert.Equal(suite.T(), "Successfully logged the transaction. Income of $1200.50 from salary on 2026-10-01 has been recorded.", reply)
	require.Len(suite.T(), suite.rows(), 1)
}

func (suite *DispatcherTestSuite) TestMalformedArgumentsBecomeEmpty() {
	suite.model.replies = []*schema.Message{toolCall("log_expense", `amount=50`)}

	reply := suite.d.Reply(suite.ctx, suite.userID, "log 50")

	assert.Equal(suite.T(), "I encountered an error: invalid argument: amount is required", reply)
	assert.Empty(suite.T(), suite.rows())
}

func (suite *DispatcherTestSuite) TestValidationErrorRendered() {
	suite.model.replies = []*schema.Message{toolCall("log_expense", `{"amount": -3, "category": "food"}`)}

	reply := suite.d.Reply(suite.ctx, suite.userID, "log -3 food")

	assert.Equal(suite.T(), "I encountered an error: invalid argument: amount must be greater than zero", reply)
	assert.Empty(suite.T(), suite.rows())
}

func (suite *DispatcherTestSuite) TestMonthlySummaryFillsFalsyMonthAndYear() {
	for _, date := range []string{"2026-10-01", "2026-10-20"} {
		_, err := suite.db.CreateTransaction(suite.ctx, models.Transaction{
			UserID: suite.userID, Amount: 100, Category: "salary", Date: date, Type: models.Income,
		})
		require.NoError(suite.T(), err)
	}
	_, err := suite.db.CreateTransaction(suite.ctx, models.Transaction{
		UserID: suite.userID, Amount: 40.5, Category: "food", Date: "2026-10-03", Type: models.Expense,
	})
	require.NoError(suite.T(), err)

	suite.model.replies = []*schema.Message{toolCall("get_monthly_summary", `{"month": 0, "year": null}`)}

	reply := suite.d.Reply(suite.ctx, suite.userID, "how am I doing this month?")

	assert.Equal(suite.T(), "Here's your monthly summary:\nIncome: $200.00\nExpenses: $40.50\nBalance: $159.50\nTotal transactions: 3", reply)
}

func (suite *DispatcherTestSuite) TestMonthlySummaryOutOfRange() {
	suite.model.replies = []*schema.Message{toolCall("get_monthly_summary", `{"month": 13, "year": 2026}`)}
	reply := suite.d.Reply(suite.ctx, suite.userID, "month 13?")
	assert.Equal(suite.T(), "I encountered an error: invalid argument: month must be between 1 and 12", reply)
}

func (suite *DispatcherTestSuite) TestExchangeRate() {
	suite.model.replies = []*schema.Message{toolCall("get_exchange_rate", `{"from_currency": "usd", "to_currency": "eur"}`)}
	reply := suite.d.Reply(suite.ctx, suite.userID, "usd to eur?")
	assert.Equal(suite.T(), "The exchange rate from USD to EUR on 2026-10-15 is 0.9123", reply)
}

func (suite *DispatcherTestSuite) TestModelErrorApologisesAndKeepsUserTurn() {
	suite.model.err = errors.New("503 from provider")

	reply := suite.d.Reply(suite.ctx, suite.userID, "log 50 for food")

	assert.Equal(suite.T(), ApologyReply, reply)
	turns := suite.turns()
	require.Len(suite.T(), turns, 1, "apology is not recorded")
	assert.Equal(suite.T(), "log 50 for food", turns[0].Content)
}

func (suite *DispatcherTestSuite) TestModelPanicApologises() {
	suite.model.panics = true
	assert.Equal(suite.T(), ApologyReply, suite.d.Reply(suite.ctx, suite.userID, "hi"))
}

func (suite *DispatcherTestSuite) TestNilModelMessageApologises() {
	suite.model.replies = []*schema.Message{nil}
	assert.Equal(suite.T(), ApologyReply, suite.d.Reply(suite.ctx, suite.userID, "hi"))
}

func (suite *DispatcherTestSuite) TestHistoryFailuresApologise() {
	fh := &failingHistory{Store: suite.history, failAppend: true}
	suite.d.history = fh
	assert.Equal(suite.T(), ApologyReply, suite.d.Reply(suite.ctx, suite.userID, "hi"))
	assert.Empty(suite.T(), suite.model.inputs, "model not called")

	fh.failAppend, fh.failRecent = false, true
	assert.Equal(suite.T(), ApologyReply, suite.d.Reply(suite.ctx, suite.userID, "hi"))
}

func (suite *DispatcherTestSuite) TestHistoryWindowIsBounded() {
	for i := 0; i < 4; i++ {
		suite.d.Reply(suite.ctx, suite.userID, fmt.Sprintf("message %d", i))
	}
	turns := suite.turns()
	require.Len(suite.T(), turns, history.DefaultCapacity)
	assert.Equal(suite.T(), "ok", turns[0].Content)
	assert.Equal(suite.T(), "message 3", turns[3].Content)
}

func TestSamplingOptions(t *testing.T) {
	store, err := history.NewStore(history.StoreTypeMemory)
	require.NoError(t, err)
	svc := finance.NewService(nil, staticRates{})

	zero := float32(0)
	m := &fakeModel{}
	NewDispatcher(m, svc, store, Config{Temperature: &zero}).Reply(context.Background(), 1, "hi")

	require.Len(t, m.opts, 1)
	common := model.GetCommonOptions(nil, m.opts[0]...)
	require.NotNil(t, common.Temperature, "an explicit zero temperature is sent")
	assert.Equal(t, float32(0), *common.Temperature)
	assert.Nil(t, common.TopP)
	assert.Nil(t, common.MaxTokens)

	m = &fakeModel{}
	NewDispatcher(m, svc, store, Config{}).Reply(context.Background(), 2, "hi")
	require.Len(t, m.opts, 1)
	assert.Empty(t, m.opts[0])
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"object", `{"a": 1, "b": "x"}`, 2},
		{"string holding object", `"{\"a\": 1}"`, 1},
		{"empty", ``, 0},
		{"array", `[1, 2]`, 0},
		{"string holding array", `"[1]"`, 0},
		{"garbage", `{not json`, 0},
		{"null", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := decodeArgs(tt.raw)
			require.NotNil(t, args)
			assert.Len(t, args, tt.want)
		})
	}
}

func TestToolsCatalog(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 4)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Desc)

		js, err := tool.ParamsOneOf.ToOpenAPIV3()
		require.NoError(t, err)
		_, hasUser := js.Properties["user_id"]
		assert.False(t, hasUser, "%s must not expose user_id", tool.Name)
	}
	assert.Equal(t, []string{"log_expense", "log_income", "get_monthly_summary", "get_exchange_rate"}, names)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "I encountered an error: Unknown error", render(finance.OpLogExpense, finance.Result{}))
	assert.Equal(t, UnknownOperationReply, render("other", finance.Result{Success: true}))
}
