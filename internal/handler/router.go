package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RouterConfig holds the HTTP limits applied by NewRouter.
type RouterConfig struct {
	MaxBodyBytes int64
	RateLimit    RateLimitConfig
}

// NewRouter wires the HTTP surface onto a new echo instance.
func NewRouter(cfg RouterConfig, rpc *RPCHandler, toolsH *ToolHandler, jobsH *JobHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler
	// Client IP comes from the socket peer; forwarding headers are not trusted.
	e.IPExtractor = echo.ExtractIPDirect()

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxBodyBytes, 10) + "B"))
	}
	e.Use(RateLimit(cfg.RateLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/rpc", rpc.Handle)

	v1 := e.Group("/api/v1")
	v1.GET("/tools", toolsH.List)
	v1.POST("/tools/:name", toolsH.Call)
	v1.GET("/jobs", jobsH.List)
	v1.GET("/jobs/:id", jobsH.Get)

	return e
}
