package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core/tenant"
)

const contextTenantKey = "tenant"

func operatorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsOperator {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// tenantMiddleware loads the tenant designated by the :id path param into the context.
// The public tenant holds no deck and is never served.
func tenantMiddleware(svc *tenant.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
			if err != nil {
				return errHttpNotFound
			}
			t, err := svc.Get(ctx.Request().Context(), id)
			if err != nil {
				if errors.Cause(err) == tenant.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding tenant by ID")
			}
			if t.SchemaName.IsPublic() {
				return errHttpNotFound
			}
			ctx.Set(contextTenantKey, t)
			return next(ctx)
		}
	}
}

func getContextTenant(ctx echo.Context) (tenant.Tenant, error) {
	if t, ok := ctx.Get(contextTenantKey).(tenant.Tenant); ok {
		return t, nil
	}
	return tenant.Tenant{}, errTenantNotFoundInCtx
}

func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}
