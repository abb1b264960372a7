package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core/user"
)

// sessionMiddleware loads the account of the JWT subject into the context.
// Deleted or deactivated accounts lose their sessions.
func sessionMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			ctx.Set(userContextKey, usr)
			return next(ctx)
		}
	}
}

// passwordChangedMiddleware blocks accounts that still hold a temporary password.
func passwordChangedMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if usr.MustChangePassword {
			return errPasswordChangeRequired
		}
		return next(ctx)
	}
}

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.IsAdmin() {
			return errHTTPForbidden
		}
		return next(ctx)
	}
}

func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.IsStudent() {
			return errHTTPForbidden
		}
		return next(ctx)
	}
}
