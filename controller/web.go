package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xeonx/timeago"

	"github.com/invoicedesk/invoicedesk/engine"
	"github.com/invoicedesk/invoicedesk/model"
)

type appError struct {
	Code   string // stable internal error code for ops/support
	Status int    // matching HTTP status
	Err    error  // original error, never handed to the client
	Public string // safe text for users (optional)
}

func (e *appError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *appError) Unwrap() error { return e.Err }

func ErrNotFound(err error) *appError {
	return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err}
}
func ErrInvalid(err error, public string) *appError {
	return &appError{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Err: err, Public: public}
}
func ErrInternal(err error) *appError {
	return &appError{Code: "INTERNAL", Status: http.StatusInternalServerError, Err: err}
}

// domainError maps the typed model errors onto the HTTP envelope.
func domainError(err error) *appError {
	var ve model.ValidationError
	switch {
	case errors.Is(err, model.ErrNotFound):
		return ErrNotFound(err)
	case errors.As(err, &ve):
		return ErrInvalid(err, ve.Error())
	case errors.Is(err, engine.ErrBusy):
		return &appError{Code: "BUSY", Status: http.StatusServiceUnavailable, Err: err, Public: "Server is busy, retry shortly."}
	default:
		return ErrInternal(err)
	}
}

var timeagoEnglish = timeago.NoMax(timeago.English)

type controller struct {
	model  *model.Store
	engine *engine.Engine
}

// await resolves an engine command for a request handler, converting a
// failed Result into the HTTP error envelope.
func (ctrl *controller) await(ch <-chan engine.Result) (engine.Result, error) {
	res := <-ch
	if res.Err != nil {
		return res, domainError(res.Err)
	}
	return res, nil
}

// NewController builds the echo application around the store and the
// reconciliation engine. It does not start listening; see Serve.
func NewController(store *model.Store, eng *engine.Engine) *echo.Echo {
	var logger *slog.Logger
	if store.Config.Mode == "development" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.BodyLimit("20M"))
	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll:   false,
		DisablePrintStack: true,
	}))

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()
			rid := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := logger.With(
				"request_id", rid,
			).WithGroup("http").With(
				"method", req.Method,
				"path", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			c.Set("logger", reqLogger)

			err := next(c)

			latency := time.Since(start)
			attrs := []any{
				"status", res.Status,
				"latency_ms", float64(latency.Microseconds()) / 1000.0,
			}
			switch {
			case res.Status >= 500:
				reqLogger.Error("http_request", attrs...)
			case res.Status >= 400:
				reqLogger.Warn("http_request", attrs...)
			default:
				reqLogger.Info("http_request", attrs...)
			}
			return err
		}
	})

	e.HTTPErrorHandler = newHTTPErrorHandler(logger)

	ctrl := controller{model: store, engine: eng}
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	ctrl.apiInit(e)

	return e
}

// newHTTPErrorHandler logs everything internally and exposes only the safe
// payload.
func newHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		l, _ := c.Get("logger").(*slog.Logger)
		if l == nil {
			l = logger
		}

		var ae *appError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
		case errors.As(err, &he):
			public := ""
			if he.Code >= 400 && he.Code < 500 {
				public = fmt.Sprint(he.Message)
			}
			ae = &appError{
				Code:   httpStatusToCode(he.Code),
				Status: he.Code,
				Err:    fmt.Errorf("%v", he.Message),
				Public: public,
			}
		case errors.Is(err, echo.ErrNotFound):
			ae = ErrNotFound(err)
		case errors.Is(err, echo.ErrMethodNotAllowed):
			ae = &appError{Code: "METHOD_NOT_ALLOWED", Status: http.StatusMethodNotAllowed, Err: err}
		default:
			ae = domainError(err)
		}

		attrs := []any{
			"status", ae.Status,
			"code", ae.Code,
			"error", ae.Err.Error(),
		}
		if ae.Status >= 500 {
			l.Error("handler_error", attrs...)
		} else {
			l.Warn("handler_error", attrs...)
		}

		if c.Response().Committed {
			return
		}
		_ = c.JSON(ae.Status, map[string]any{
			"error":      userMessage(ae),
			"error_code": ae.Code,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}
}

// Serve runs the HTTP server until it fails or the process is stopped.
func Serve(e *echo.Echo, cfg *model.Config) error {
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		return fmt.Errorf("cannot start application %w", err)
	}
	return nil
}

func userMessage(ae *appError) string {
	if ae.Public != "" {
		return ae.Public
	}
	switch ae.Code {
	case "INVALID_INPUT":
		return "The input is invalid. Please check and resubmit."
	case "NOT_FOUND":
		return "The requested resource was not found."
	case "METHOD_NOT_ALLOWED":
		return "This HTTP method is not supported here."
	case "BUSY":
		return "The server is busy. Please retry shortly."
	default:
		return "An error occurred. Please try again later."
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case 400:
		return "INVALID_INPUT"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 429:
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}
