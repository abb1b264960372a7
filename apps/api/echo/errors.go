package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
)

var (
	errUnauthorized           = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated     = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired         = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHTTPForbidden          = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errPasswordChangeRequired = echo.NewHTTPError(http.StatusForbidden, "password change required")
)

// errorStatus maps domain sentinel errors to their HTTP status.
var errorStatus = map[error]int{
	user.ErrNotFound:             http.StatusNotFound,
	user.ErrForbidden:            http.StatusForbidden,
	user.ErrAuthenticationFailed: http.StatusBadRequest,
	user.ErrAccountDeactivated:   http.StatusForbidden,
	progress.ErrNotFound:         http.StatusNotFound,
	progress.ErrForbidden:        http.StatusForbidden,
	progress.ErrNotStudent:       http.StatusForbidden,
	progress.ErrDuplicateWeek:    http.StatusConflict,
	progress.ErrInvalidAction:    http.StatusBadRequest,
	progress.ErrMissingToken:     http.StatusBadRequest,
	progress.ErrInvalidStatus:    http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors, *core.ValidationError:
			code = http.StatusBadRequest
			if fldErrs, ok := core.FieldErrors(cause, translator); ok {
				message = fldErrs
			} else {
				message = cause.Error()
			}
		default:
			if status, ok := errorStatus[cause]; ok {
				code = status
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if usr, uErr := getContextUser(ctx); uErr == nil {
				args = append(args, usr)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
