package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		respType string
	}{
		{
			name:     "partial fulfillment wrapping missing user",
			err:      fmt.Errorf("%w: %w", paymentdomain.ErrPartialFulfillment, userdomain.ErrNotFound),
			status:   http.StatusServiceUnavailable,
			respType: "service_unavailable",
		},
		{
			name:     "concurrent update",
			err:      paymentdomain.ErrConcurrentUpdate,
			status:   http.StatusServiceUnavailable,
			respType: "service_unavailable",
		},
		{
			name:     "missing order",
			err:      paymentdomain.ErrOrderNotFound,
			status:   http.StatusNotFound,
			respType: "not_found",
		},
		{
			name:     "not payable",
			err:      paymentdomain.ErrOrderNotPayable,
			status:   http.StatusConflict,
			respType: "conflict",
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			status:   http.StatusInternalServerError,
			respType: "internal_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.respType, payload.Type)
		})
	}
}
