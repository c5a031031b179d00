package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/middleware"
)

// setupErrorHandling installs a JSON error handler. echo.HTTPErrors keep
// their status; anything else is a 500 logged with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			_ = c.JSON(he.Code, handlers.ErrorResponse{Code: http.StatusText(he.Code), Message: msg})
			return
		}

		middleware.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
			slog.String("error", err.Error()),
			slog.String("path", c.Request().URL.Path),
			slog.String("stack_trace", string(debug.Stack())),
		)
		_ = c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{Code: "Internal", Message: "internal server error"})
	}
}
