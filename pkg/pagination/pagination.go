// Package pagination reads limit/offset windows from query strings and
// wraps list results with the counts clients need to page through them.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Window is one limit/offset slice of an ordered list.
type Window struct {
	Limit  int
	Offset int
}

// ParamError reports a query parameter that is not a usable number.
type ParamError struct {
	Param string
	Value string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s must be a non-negative integer, got %q", e.Param, e.Value)
}

// Parse reads "limit" and "offset". A missing limit, or limit=0, becomes def
// and a limit above maxLimit is clamped. Non-numeric or negative values are
// rejected.
func Parse(c echo.Context, def, maxLimit int) (Window, error) {
	limit, err := intParam(c, "limit")
	if err != nil {
		return Window{}, err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return Window{}, err
	}
	if limit == 0 {
		limit = def
	}
	return Window{Limit: min(limit, maxLimit), Offset: offset}, nil
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ParamError{Param: name, Value: raw}
	}
	return n, nil
}

// Page is a window of T with the total across all windows.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// NewPage wraps items. Data is never null in JSON.
func NewPage[T any](items []T, total int, w Window) Page[T] {
	if items == nil {
		items = []T{}
	}
	p := Page[T]{Data: items, Total: total, Limit: w.Limit, Offset: w.Offset}
	if next := w.Offset + w.Limit; next < total {
		p.HasMore = true
		p.NextOffset = &next
	}
	return p
}
