package assistant

import (
	"finance-assistant/internal/finance"

	"github.com/cloudwego/eino/schema"
)

// Tools returns the operations the model may call. The caller's identity is
// not a parameter; the dispatcher supplies it from the session.
func Tools() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: finance.OpLogExpense,
			Desc: "Log an expense transaction for the user",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"amount": {
					Type:     schema.Number,
					Desc:     "The amount of the expense",
					Required: true,
				},
				"category": {
					Type:     schema.String,
					Desc:     "The category of the expense, e.g. food, transport, rent",
					Required: true,
				},
				"date": {
					Type: schema.String,
					Desc: "The date of the expense in YYYY-MM-DD format (optional, defaults to today)",
				},
			}),
		},
		{
			Name: finance.OpLogIncome,
			Desc: "Log an income transaction for the user",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"amount": {
					Type:     schema.Number,
					Desc:     "The amount of the income",
					Required: true,
				},
				"source": {
					Type:     schema.String,
					Desc:     "The source of the income, e.g. salary, freelance",
					Required: true,
				},
				"date": {
					Type: schema.String,
					Desc: "The date of the income in YYYY-MM-DD format (optional, defaults to today)",
				},
			}),
		},
		{
			Name: finance.OpMonthlySummary,
			Desc: "Get the user's income, expenses and balance for a month",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"month": {
					Type: schema.Integer,
					Desc: "The month number 1-12 (optional, defaults to the current month)",
				},
				"year": {
					Type: schema.Integer,
					Desc: "The four-digit year (optional, defaults to the current year)",
				},
			}),
		},
		{
			Name: finance.OpGetExchangeRate,
			Desc: "Get the exchange rate between two currencies",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"from_currency": {
					Type:     schema.String,
					Desc:     "The source currency code, e.g. USD",
					Required: true,
				},
				"to_currency": {
					Type:     schema.String,
					Desc:     "The target currency code, e.g. EUR",
					Required: true,
				},
				"date": {
					Type: schema.String,
					Desc: "The date in YYYY-MM-DD format (optional)",
				},
			}),
		},
	}
}
