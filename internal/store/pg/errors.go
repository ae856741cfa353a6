package pg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
