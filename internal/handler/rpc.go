package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/recursiveflow/internal/domain"
)

// MessageHandler processes a single JSON-RPC message.
type MessageHandler interface {
	Handle(ctx context.Context, raw []byte) []byte
}

// RPCHandler accepts JSON-RPC messages over HTTP.
type RPCHandler struct {
	dispatcher MessageHandler
}

// NewRPCHandler creates a new RPCHandler.
func NewRPCHandler(d MessageHandler) *RPCHandler {
	return &RPCHandler{dispatcher: d}
}

// Handle handles POST /rpc. Notifications are acknowledged with 202.
func (h *RPCHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fmt.Errorf("read body: %w: %w", domain.ErrInvalidInput, err)
	}

	reply := h.dispatcher.Handle(c.Request().Context(), body)
	if reply == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSONBlob(http.StatusOK, reply)
}
