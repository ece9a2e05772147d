package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe places manual-capture PaymentIntents. Network retries are disabled: a capture is
// attempted once per call and failures are reported to the caller.
type Stripe struct {
	api     *client.API
	timeout time.Duration
}

func NewStripe(secretKey string, timeout time.Duration) *Stripe {
	return &Stripe{api: client.New(secretKey, backends(timeout)), timeout: timeout}
}

// backends points each slot at its own Stripe host, all without network retries.
func backends(timeout time.Duration) *stripe.Backends {
	backend := func(t stripe.SupportedBackend) stripe.Backend {
		return stripe.GetBackendWithConfig(t, &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: timeout},
			MaxNetworkRetries: stripe.Int64(0),
		})
	}
	return &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	}
}

func (s *Stripe) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Authorization{}, classify("authorize", err)
	}
	return Authorization{Handle: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) Capture(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + handle)

	if _, err := s.api.PaymentIntents.Capture(handle, params); err != nil {
		return classify("capture", err)
	}
	return nil
}

func (s *Stripe) Cancel(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey("cancel-" + handle)

	if _, err := s.api.PaymentIntents.Cancel(handle, params); err != nil {
		return classify("cancel", err)
	}
	return nil
}

// classify turns a stripe-go error into ErrAlreadyCaptured/ErrAlreadyCancelled when the
// intent is already in the requested end state, and into *Error otherwise. Only the
// processor's user-facing message is kept.
func classify(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &Error{Op: op, Message: "payment processor unreachable"}
	}

	if se.Code == stripe.ErrorCodePaymentIntentUnexpectedState && se.PaymentIntent != nil {
		switch {
		case op == "capture" && se.PaymentIntent.Status == stripe.PaymentIntentStatusSucceeded:
			return ErrAlreadyCaptured
		case op == "cancel" && se.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled:
			return ErrAlreadyCancelled
		}
	}
	return &Error{Op: op, Code: string(se.Code), Message: se.Msg}
}
