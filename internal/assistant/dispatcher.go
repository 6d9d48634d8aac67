// Package assistant turns a chat message into a reply by letting a
// tool-calling language model pick one of the finance operations.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"finance-assistant/internal/finance"
	"finance-assistant/internal/history"
	"finance-assistant/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Model is the chat model the dispatcher talks to. The model is expected to
// already be bound to the Tools catalog.
type Model interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Operations are the finance operations reachable from the catalog.
type Operations interface {
	LogExpense(ctx context.Context, args finance.Args) finance.Result
	LogIncome(ctx context.Context, args finance.Args) finance.Result
	MonthlySummary(ctx context.Context, args finance.Args) finance.Result
	ExchangeRate(ctx context.Context, args finance.Args) finance.Result
}

// Config holds sampling settings passed on every model call. A nil
// Temperature or TopP leaves the provider default in place.
type Config struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   int

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Dispatcher runs one conversation turn per Reply call.
type Dispatcher struct {
	model   Model
	history history.Store
	ops     map[string]func(context.Context, finance.Args) finance.Result
	opts    []model.Option
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(m Model, ops Operations, h history.Store, cfg Config) *Dispatcher {
	var opts []model.Option
	if cfg.Temperature != nil {
		opts = append(opts, model.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, model.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.MaxTokens))
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		model:   m,
		history: h,
		ops: map[string]func(context.Context, finance.Args) finance.Result{
			finance.OpLogExpense:      ops.LogExpense,
			finance.OpLogIncome:       ops.LogIncome,
			finance.OpMonthlySummary:  ops.MonthlySummary,
			finance.OpGetExchangeRate: ops.ExchangeRate,
		},
		opts: opts,
		now:  now,
	}
}

// Reply answers message on behalf of userID. It never fails: anything that
// goes wrong yields ApologyReply, and the user's message stays in history.
func (d *Dispatcher) Reply(ctx context.Context, userID int64, message string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatcher: panic for user %d: %v", userID, r)
			reply = ApologyReply
		}
	}()

	if err := d.history.Append(ctx, userID, history.Turn{
		Role: history.RoleUser, Content: message, At: d.now().UTC(),
	}); err != nil {
		log.Printf("dispatcher: append user turn for user %d: %v", userID, err)
		return ApologyReply
	}

	turns, err := d.history.Recent(ctx, userID)
	if err != nil {
		log.Printf("dispatcher: load history for user %d: %v", userID, err)
		return ApologyReply
	}

	out, err := d.model.Generate(ctx, d.messages(userID, turns), d.opts...)
	if err != nil {
		log.Printf("dispatcher: model call for user %d: %v", userID, err)
		return ApologyReply
	}
	if out == nil {
		log.Printf("dispatcher: model returned no message for user %d", userID)
		return ApologyReply
	}

	if len(out.ToolCalls) > 0 {
		reply = d.call(ctx, userID, out.ToolCalls[0].Function)
	} else {
		reply = out.Content
	}

	// Best effort: the operation has already run.
	if err := d.history.Append(ctx, userID, history.Turn{
		Role: history.RoleAssistant, Content: reply, At: d.now().UTC(),
	}); err != nil {
		log.Printf("dispatcher: append assistant turn for user %d: %v", userID, err)
	}
	return reply
}

func (d *Dispatcher) messages(userID int64, turns []history.Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns)+1)
	msgs = append(msgs, schema.SystemMessage(systemPrompt(d.now(), userID)))
	for _, t := range turns {
		switch t.Role {
		case history.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(t.Content))
		}
	}
	return msgs
}

func systemPrompt(now time.Time, userID int64) string {
	return fmt.Sprintf(`You are a personal finance assistant.
Today is %s. You are talking to user %d.
Use log_expense when the user reports spending money and log_income when they report receiving money.
Use get_monthly_summary for questions about a month's totals and get_exchange_rate for currency conversion rates.
Dates are YYYY-MM-DD. Leave out optional arguments you do not know.
Otherwise answer briefly in plain text.`, now.Format(models.DateLayout), userID)
}

func (d *Dispatcher) call(ctx context.Context, userID int64, fn schema.FunctionCall) string {
	op, ok := d.ops[fn.Name]
	if !ok {
		log.Printf("dispatcher: user %d: unknown operation %q", userID, fn.Name)
		return UnknownOperationReply
	}

	args := decodeArgs(fn.Arguments)
	args["user_id"] = userID
	if fn.Name == finance.OpMonthlySummary {
		now := d.now()
		if falsy(args["year"]) {
			args["year"] = now.Year()
		}
		if falsy(args["month"]) {
			args["month"] = int(now.Month())
		}
	}

	log.Printf("dispatcher: user %d: calling %s", userID, fn.Name)
	return render(fn.Name, op(ctx, args))
}

// decodeArgs accepts a JSON object, or a JSON string that itself holds an
// object. Anything else decodes to an empty set.
func decodeArgs(raw string) finance.Args {
	if args, ok := decodeObject(raw); ok {
		return args
	}

	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		if args, ok := decodeObject(inner); ok {
			return args
		}
	}
	return finance.Args{}
}

func decodeObject(raw string) (finance.Args, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var args finance.Args
	if err := dec.Decode(&args); err != nil || args == nil {
		return nil, false
	}
	return args, true
}

func falsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case float64:
		return x == 0
	case int:
		return x == 0
	case string:
		return x == ""
	case bool:
		return !x
	default:
		return false
	}
}
