package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type chatReq struct {
	Message string `json:"message"`
	// UserID is accepted for compatibility and ignored; identity comes
	// from the session.
	UserID any `json:"user_id,omitempty"`
}

type chatResp struct {
	Response string `json:"response"`
}

// Chat forwards one message to the assistant on behalf of the session user.
func (h *Handlers) Chat(c echo.Context) error {
	user := GetUserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req chatReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message is required"})
	}

	reply := h.assistant.Reply(c.Request().Context(), user.ID, req.Message)
	return c.JSON(http.StatusOK, chatResp{Response: reply})
}
