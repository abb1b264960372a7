package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/weeklog/core"
)

const orderingParam = "ordering"

// bindOrdering reads the "ordering" query param, eg. ?ordering=-week_number,status
func bindOrdering(ctx echo.Context, allowed ...string) []core.DBOrdering {
	return core.ParseOrdering(ctx.QueryParam(orderingParam), allowed...)
}
