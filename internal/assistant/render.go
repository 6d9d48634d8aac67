package assistant

import (
	"fmt"

	"finance-assistant/internal/finance"
)

const (
	// UnknownOperationReply answers a call to an operation outside the catalog.
	UnknownOperationReply = "I'm sorry, I don't know how to handle that function."

	// ApologyReply answers any request that failed before a reply could be produced.
	ApologyReply = "I'm sorry, something went wrong while processing your request. Please try again."
)

func render(op string, res finance.Result) string {
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return "I encountered an error: " + msg
	}

	switch op {
	case finance.OpLogExpense, finance.OpLogIncome:
		return "Successfully logged the transaction. " + res.Message
	case finance.OpMonthlySummary:
		s := res.Summary
		return fmt.Sprintf("Here's your monthly summary:\nIncome: $%.2f\nExpenses: $%.2f\nBalance: $%.2f\nTotal transactions: %d",
			s.Income, s.Expenses, s.Balance, s.Transactions)
	case finance.OpGetExchangeRate:
		r := res.Rate
		return fmt.Sprintf("The exchange rate from %s to %s on %s is %.4f", r.From, r.To, r.Date, r.Rate)
	default:
		return UnknownOperationReply
	}
}
