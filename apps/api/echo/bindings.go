package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/parlemonde/clap-sub002/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// intParam parses a numeric path param. Malformed IDs are reported as not found.
func intParam(ctx echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return v, nil
}

// timeQuery parses the `t` query param, a position in milliseconds.
func timeQuery(ctx echo.Context) (int, error) {
	raw := ctx.QueryParam("t")
	if raw == "" {
		return 0, nil
	}
	t, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "t", Error: "must be a number of milliseconds"})
	}
	return t, nil
}
