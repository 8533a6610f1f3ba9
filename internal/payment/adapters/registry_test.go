package adapters_test

import (
	"testing"

	"github.com/smallbiznis/storefront/internal/payment/adapters"
	"github.com/smallbiznis/storefront/internal/payment/adapters/adyen"
	"github.com/smallbiznis/storefront/internal/payment/adapters/stripe"
	"github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesProviders(t *testing.T) {
	registry, err := adapters.NewRegistry(stripe.NewFactory(), nil, adyen.NewFactory())
	require.NoError(t, err)

	assert.Equal(t, []string{"adyen", "stripe"}, registry.Providers())
	assert.True(t, registry.Has(" Stripe "))
	assert.False(t, registry.Has("paypal"))

	_, err = registry.NewAdapter("paypal", domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestRegistryRejectsDuplicateProvider(t *testing.T) {
	_, err := adapters.NewRegistry(stripe.NewFactory(), stripe.NewFactory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"stripe" registered twice`)
}

func TestNilRegistry(t *testing.T) {
	var registry *adapters.Registry
	assert.False(t, registry.Has("stripe"))
	assert.Nil(t, registry.Providers())
	_, err := registry.NewAdapter("stripe", domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
