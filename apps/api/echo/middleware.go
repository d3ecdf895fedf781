package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const contextCenterKey = "centerID"

// centerMiddleware requires the operator's claims to carry a center id and
// stashes it in the context: every downstream call is center-scoped, never
// ambient.
func centerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				// the JWT middleware ran but left no usable claims
				return errors.Wrap(errUnauthorized, err.Error())
			}
			if claims.CenterID == "" {
				return errHttpForbidden
			}
			ctx.Set(contextCenterKey, claims.CenterID)
			return next(ctx)
		}
	}
}

func getContextCenterID(ctx echo.Context) string {
	centerID, _ := ctx.Get(contextCenterKey).(string)
	return centerID
}
