package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/recursiveflow/internal/domain"
	"github.com/sumire/recursiveflow/internal/tools"
)

// ToolCaller lists and invokes workflow tools.
type ToolCaller interface {
	List() []tools.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error)
}

// ToolHandler exposes the tool registry over REST.
type ToolHandler struct {
	tools ToolCaller
}

// NewToolHandler creates a new ToolHandler.
func NewToolHandler(caller ToolCaller) *ToolHandler {
	return &ToolHandler{tools: caller}
}

// List handles GET /api/v1/tools.
func (h *ToolHandler) List(c echo.Context) error {
	return JSON(c, http.StatusOK, h.tools.List())
}

// Call handles POST /api/v1/tools/:name. The body is the tool's argument
// object and the tool envelope is written as is.
func (h *ToolHandler) Call(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fmt.Errorf("read body: %w: %w", domain.ErrInvalidInput, err)
	}

	res, err := h.tools.Call(c.Request().Context(), c.Param("name"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
