package adyen

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "44782DEF547AAA06C910C43932B1EB0C71FC68D9D0C057550C48EC2ACF6BA056"

func signedPayload(t *testing.T, key string, items ...NotificationRequestItem) []byte {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"hmac_key": key}})
	require.NoError(t, err)

	root := notificationRoot{}
	for _, item := range items {
		if item.AdditionalData == nil {
			item.AdditionalData = map[string]string{}
		}
		item.AdditionalData["hmacSignature"] = Sign(adapter.(*Adapter).hmacKey, item)
		root.NotificationItems = append(root.NotificationItems, notificationItem{NotificationRequestItem: item})
	}
	payload, err := json.Marshal(root)
	require.NoError(t, err)
	return payload
}

func authorisation(orderID, userID snowflake.ID, success string) NotificationRequestItem {
	return NotificationRequestItem{
		AdditionalData: map[string]string{
			"metadata.order_id": orderID.String(),
			"metadata.user_id":  userID.String(),
		},
		Amount:              Amount{Currency: "EUR", Value: 5000},
		EventCode:           "AUTHORISATION",
		EventDate:           "2024-03-01T10:00:00+01:00",
		MerchantAccountCode: "StorefrontEU",
		MerchantReference:   "order-ref",
		PspReference:        "8816178952380553",
		Success:             success,
	}
}

func TestVerifyAndParse(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orderID, userID := node.Generate(), node.Generate()

	payload := signedPayload(t, testKey, authorisation(orderID, userID, "true"))

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"hmac_key": testKey}})
	require.NoError(t, err)
	require.NoError(t, adapter.Verify(context.Background(), payload, nil))

	capture, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, capture.Succeeded)
	assert.Equal(t, "8816178952380553", capture.TransactionID)
	assert.Equal(t, "EUR", capture.Currency)
	assert.Equal(t, int64(5000), capture.AmountMinorUnits)
	assert.Equal(t, orderID, capture.OrderID)
	assert.Equal(t, userID, capture.UserID)
	assert.Equal(t, 9, capture.CapturedAt.Hour())
}

func TestVerifyRejectsTamperedItem(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	payload := signedPayload(t, testKey, authorisation(node.Generate(), node.Generate(), "true"))

	var root notificationRoot
	require.NoError(t, json.Unmarshal(payload, &root))
	root.NotificationItems[0].NotificationRequestItem.Amount.Value = 1
	tampered, err := json.Marshal(root)
	require.NoError(t, err)

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"hmac_key": testKey}})
	require.NoError(t, err)
	assert.ErrorIs(t, adapter.Verify(context.Background(), tampered, nil), paymentdomain.ErrInvalidSignature)
}

func TestParseFailedAuthorisation(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	payload := signedPayload(t, testKey, authorisation(node.Generate(), node.Generate(), "false"))

	adapter := &Adapter{}
	capture, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.False(t, capture.Succeeded)
}

func TestParseIgnoresRefund(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	item := authorisation(node.Generate(), node.Generate(), "true")
	item.EventCode = "REFUND"

	_, err = (&Adapter{}).Parse(context.Background(), signedPayload(t, testKey, item))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestFactoryRejectsNonHexKey(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"hmac_key": "not-hex"}})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
