package adyen

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

const providerName = "adyen"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	hmacKey, ok := readString(cfg.Config, "hmac_key")
	if !ok || strings.TrimSpace(hmacKey) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(hmacKey))
	if err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{hmacKey: keyBytes}, nil
}

type Adapter struct {
	hmacKey []byte
}

// Verify checks the hmacSignature Adyen puts in every notification item.
// The whole delivery is rejected if any item fails.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	var root notificationRoot
	if err := json.Unmarshal(payload, &root); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if len(root.NotificationItems) == 0 {
		return paymentdomain.ErrInvalidPayload
	}

	for _, item := range root.NotificationItems {
		signature := item.NotificationRequestItem.AdditionalData["hmacSignature"]
		if signature == "" {
			return paymentdomain.ErrInvalidSignature
		}
		expected := Sign(a.hmacKey, item.NotificationRequestItem)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return paymentdomain.ErrInvalidSignature
		}
	}
	return nil
}

// Sign computes the base64 HMAC-SHA256 over the escaped, colon-joined
// signing fields of one notification item.
func Sign(key []byte, item NotificationRequestItem) string {
	parts := []string{
		item.PspReference,
		item.OriginalReference,
		item.MerchantAccountCode,
		item.MerchantReference,
		strconv.FormatInt(item.Amount.Value, 10),
		item.Amount.Currency,
		item.EventCode,
		item.Success,
	}

	var sb strings.Builder
	for i, part := range parts {
		replaced := strings.ReplaceAll(part, "\\", "\\\\")
		replaced = strings.ReplaceAll(replaced, ":", "\\:")
		sb.WriteString(replaced)
		if i < len(parts)-1 {
			sb.WriteString(":")
		}
	}

	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Parse reads the first AUTHORISATION item of the batch. Storefront
// payments are single-item deliveries; other event codes are ignored.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.CaptureResult, error) {
	var root notificationRoot
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if len(root.NotificationItems) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}

	item := root.NotificationItems[0].NotificationRequestItem
	if item.EventCode != "AUTHORISATION" {
		return nil, paymentdomain.ErrEventIgnored
	}
	if strings.TrimSpace(item.PspReference) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	orderRaw := item.AdditionalData["metadata.order_id"]
	if orderRaw == "" {
		orderRaw = item.AdditionalData["metadata.bill_id"]
	}
	if orderRaw == "" {
		orderRaw = item.MerchantReference
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(orderRaw))
	if err != nil || orderID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(item.AdditionalData["metadata.user_id"]))
	if err != nil || userID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.CaptureResult{
		Provider:          providerName,
		ProviderEventID:   item.PspReference + "_" + item.EventCode + "_" + item.Success,
		ProviderReference: item.PspReference,
		TransactionID:     item.PspReference,
		EventType:         item.EventCode,
		Succeeded:         item.Success == "true",
		AmountMinorUnits:  item.Amount.Value,
		Currency:          strings.ToUpper(item.Amount.Currency),
		CapturedAt:        convertEventDate(item.EventDate),
		OrderID:           orderID,
		UserID:            userID,
		RawPayload:        payload,
	}, nil
}

func convertEventDate(dateStr string) time.Time {
	t, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

func readString(config map[string]any, key string) (string, bool) {
	val, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

type notificationRoot struct {
	NotificationItems []notificationItem `json:"notificationItems"`
}

type notificationItem struct {
	NotificationRequestItem NotificationRequestItem `json:"NotificationRequestItem"`
}

type NotificationRequestItem struct {
	AdditionalData      map[string]string `json:"additionalData"`
	Amount              Amount            `json:"amount"`
	EventCode           string            `json:"eventCode"`
	EventDate           string            `json:"eventDate"`
	MerchantAccountCode string            `json:"merchantAccountCode"`
	MerchantReference   string            `json:"merchantReference"`
	OriginalReference   string            `json:"originalReference"`
	PspReference        string            `json:"pspReference"`
	Reason              string            `json:"reason"`
	Success             string            `json:"success"`
}

type Amount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}
