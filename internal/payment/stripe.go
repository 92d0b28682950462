// internal/payment/stripe.go
package payment

import (
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
)

// StripeClient creates checkout links for the card payment rail. Settlement
// stays manual: the operator still adjudicates the payment record.
type StripeClient struct {
	secretKey string
	publicKey string
}

func NewStripeClient(config struct {
	SecretKey string
	PublicKey string
}) *StripeClient {
	stripe.Key = config.SecretKey

	return &StripeClient{
		secretKey: config.SecretKey,
		publicKey: config.PublicKey,
	}
}

// CreateCheckoutSession returns a hosted checkout URL for the given amount.
// The payment code travels as the client reference so the operator can match
// the charge to the record.
func (s *StripeClient) CreateCheckoutSession(chatID int64, paymentCode, planName string, amountUSD float64, successURL, cancelURL string) (string, error) {
	if stripe.Key != s.secretKey {
		stripe.Key = s.secretKey
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(int64(amountUSD * 100)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("AI Crypto Indicator — %s (%s)", planName, paymentCode)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(chatID, 10) + ":" + paymentCode),
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess.URL, nil
}
