package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON envelope for every error response.
type Body struct {
	Error *Error `json:"error"`
}

// HTTPErrorHandler renders classified errors and echo's own HTTP errors with
// the same envelope. Internal errors are logged and reported to Sentry when a
// client is configured; their details never reach the response.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			_ = c.JSON(httpErr.Code, Body{Error: fromHTTPError(httpErr)})
			return
		}

		e := As(err)
		if e.Kind == KindInternal {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
			if hub := sentry.CurrentHub(); hub.Client() != nil {
				hub.CaptureException(err)
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(e.Status())
			return
		}
		_ = c.JSON(e.Status(), Body{Error: e})
	}
}

func fromHTTPError(he *echo.HTTPError) *Error {
	kind := KindInternal
	switch {
	case he.Code == http.StatusNotFound:
		kind = KindNotFound
	case he.Code == http.StatusConflict:
		kind = KindConflict
	case he.Code == http.StatusUnauthorized || he.Code == http.StatusForbidden:
		kind = KindState
	case he.Code >= 400 && he.Code < 500:
		kind = KindValidation
	}
	return &Error{
		Kind:    kind,
		Code:    http.StatusText(he.Code),
		Message: fmt.Sprintf("%v", he.Message),
	}
}
