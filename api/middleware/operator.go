package middleware

import (
	"net/http"
	"strings"

	"github.com/lastline-erp/lastline-backend/pkg/logger"
)

const (
	operatorHeader    = "X-Operator"
	maxOperatorLength = 128
)

// Operator reads the acting operator from the X-Operator header set by the
// upstream gateway. Requests without it run as an anonymous operator.
func Operator(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operator := strings.TrimSpace(r.Header.Get(operatorHeader))
			if len(operator) > maxOperatorLength {
				operator = operator[:maxOperatorLength]
			}
			if operator == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithOperator(r.Context(), operator)
			if logg != nil {
				ctx = logg.WithOperator(ctx, operator)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
