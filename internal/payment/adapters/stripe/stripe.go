package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

const providerName = "stripe"

// signatureTolerance bounds how old a signed delivery may be.
const signatureTolerance = 5 * time.Minute

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{webhookSecret: secret, now: time.Now}, nil
}

type Adapter struct {
	webhookSecret string
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	if age := now().Sub(time.Unix(signedAt, 0)); age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.CaptureResult, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch eventType := strings.TrimSpace(event.Type); eventType {
	case "payment_intent.succeeded":
		return parsePaymentIntent(event, payload, true)
	case "payment_intent.payment_failed":
		return parsePaymentIntent(event, payload, false)
	case "charge.succeeded":
		return parseCharge(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	LatestCharge   string         `json:"latest_charge"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeCharge struct {
	ID            string         `json:"id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Status        string         `json:"status"`
	Paid          bool           `json:"paid"`
	PaymentIntent string         `json:"payment_intent"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

// parsePaymentIntent keys the capture on the intent's charge when Stripe
// includes it, so a charge.succeeded for the same payment shares the
// transaction id.
func parsePaymentIntent(event stripeEvent, payload []byte, succeeded bool) (*paymentdomain.CaptureResult, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	orderID, userID, err := parseMetadataIDs(intent.Metadata)
	if err != nil {
		return nil, err
	}

	transactionID := strings.TrimSpace(intent.LatestCharge)
	if transactionID == "" {
		transactionID = intent.ID
	}
	if succeeded && intent.Status != "" && intent.Status != "succeeded" {
		succeeded = false
	}

	return &paymentdomain.CaptureResult{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderReference: intent.ID,
		TransactionID:     transactionID,
		EventType:         event.Type,
		Succeeded:         succeeded,
		AmountMinorUnits:  amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		CapturedAt:        timestamp(intent.Created, event.Created),
		OrderID:           orderID,
		UserID:            userID,
		RawPayload:        payload,
	}, nil
}

func parseCharge(event stripeEvent, payload []byte) (*paymentdomain.CaptureResult, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(charge.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	orderID, userID, err := parseMetadataIDs(charge.Metadata)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(charge.PaymentIntent)
	if reference == "" {
		reference = charge.ID
	}

	return &paymentdomain.CaptureResult{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderReference: reference,
		TransactionID:     charge.ID,
		EventType:         event.Type,
		Succeeded:         charge.Status == "succeeded" || (charge.Status == "" && charge.Paid),
		AmountMinorUnits:  charge.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(charge.Currency)),
		CapturedAt:        timestamp(charge.Created, event.Created),
		OrderID:           orderID,
		UserID:            userID,
		RawPayload:        payload,
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

// parseMetadataIDs reads order_id (or the legacy bill_id) and user_id.
func parseMetadataIDs(metadata map[string]any) (snowflake.ID, snowflake.ID, error) {
	orderRaw := readMetadataValue(metadata, "order_id")
	if orderRaw == "" {
		orderRaw = readMetadataValue(metadata, "bill_id")
	}
	orderID, err := snowflake.ParseString(orderRaw)
	if err != nil || orderID == 0 {
		return 0, 0, paymentdomain.ErrInvalidEvent
	}

	userID, err := snowflake.ParseString(readMetadataValue(metadata, "user_id"))
	if err != nil || userID == 0 {
		return 0, 0, paymentdomain.ErrInvalidEvent
	}
	return orderID, userID, nil
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
