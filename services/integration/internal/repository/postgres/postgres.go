// Package postgres implements the integration service repositories on
// PostgreSQL through database.DBTX.
package postgres

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/pagination"
)

// spanErr keeps lookups that found nothing from being reported as failed spans.
func spanErr(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// whereBuilder accumulates positional conditions.
type whereBuilder struct {
	conditions []string
	args       []any
}

func (w *whereBuilder) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

// page appends LIMIT and OFFSET arguments and returns their placeholders.
func (w *whereBuilder) page(params pagination.Params) string {
	limit := params.PerPage
	if limit <= 0 {
		limit = pagination.DefaultParams().PerPage
	}
	offset := 0
	if params.Page > 1 {
		offset = (params.Page - 1) * limit
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}
