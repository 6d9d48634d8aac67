package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"finance-assistant/internal/finance"
	"finance-assistant/internal/models"

	"github.com/labstack/echo/v4"
)

type transactionsResp struct {
	From         string               `json:"from"`
	To           string               `json:"to"`
	Totals       models.Totals        `json:"totals"`
	Balance      float64              `json:"balance"`
	Transactions []models.Transaction `json:"transactions"`
}

// Transactions lists the session user's transactions in [from, to).
// Without from/to it falls back to year/month, defaulting to the current month.
func (h *Handlers) Transactions(c echo.Context) error {
	user := GetUserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	from, to, ok := rangeFromQuery(c, time.Now())
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date range"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	txs, err := h.ledger.ListTransactions(ctx, user.ID, from, to)
	if err != nil {
		log.Printf("ListTransactions error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	totals, err := h.ledger.SummarizeRange(ctx, user.ID, from, to)
	if err != nil {
		log.Printf("SummarizeRange error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	return c.JSON(http.StatusOK, transactionsResp{
		From:         from,
		To:           to,
		Totals:       totals,
		Balance:      totals.Income - totals.Expenses,
		Transactions: txs,
	})
}

func rangeFromQuery(c echo.Context, now time.Time) (from, to string, ok bool) {
	from, to = c.QueryParam("from"), c.QueryParam("to")
	if from != "" || to != "" {
		if !validDate(from) || !validDate(to) || from >= to {
			return "", "", false
		}
		return from, to, true
	}

	year, month := now.Year(), int(now.Month())
	if s := c.QueryParam("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return "", "", false
		}
		year = y
	}
	if s := c.QueryParam("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			return "", "", false
		}
		month = m
	}
	from, to = finance.MonthBounds(year, month)
	return from, to, true
}

func validDate(s string) bool {
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}
