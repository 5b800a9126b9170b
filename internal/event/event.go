package event

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"payment-webhook-service/internal/apperror"
)

// Type is the closed set of provider event types this service reacts to.
// Anything else decodes to TypeUnknown and is acknowledged without dispatch.
type Type int

const (
	TypeUnknown Type = iota
	TypePaymentSucceeded
	TypePaymentFailed
	TypeDisputeCreated
	TypeTransferCreated
	TypeTransferFailed
)

var typeNames = map[string]Type{
	"payment_intent.succeeded":      TypePaymentSucceeded,
	"payment_intent.payment_failed": TypePaymentFailed,
	"charge.dispute.created":        TypeDisputeCreated,
	"transfer.created":              TypeTransferCreated,
	"transfer.failed":               TypeTransferFailed,
}

func ParseType(raw string) Type {
	if t, ok := typeNames[raw]; ok {
		return t
	}
	return TypeUnknown
}

func (t Type) String() string {
	for name, value := range typeNames {
		if value == t {
			return name
		}
	}
	return "unknown"
}

// Envelope is the decoded provider notification. Object stays raw until a
// handler asks for the typed view for its event category.
type Envelope struct {
	ID      string `json:"id" validate:"required"`
	RawType string `json:"type" validate:"required"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`

	Type Type `json:"-"`
}

type PaymentError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type PaymentIntent struct {
	ID               string        `json:"id" validate:"required"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	LatestCharge     string        `json:"latest_charge"`
	LastPaymentError *PaymentError `json:"last_payment_error"`
}

type Dispute struct {
	ID            string `json:"id" validate:"required"`
	PaymentIntent string `json:"payment_intent" validate:"required"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
}

type Transfer struct {
	ID             string `json:"id" validate:"required"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	FailureMessage string `json:"failure_message"`
}

var validate = validator.New()

// Decode parses verified raw bytes into an envelope. Malformed JSON and
// schema violations return INVALID_PAYLOAD; unrecognized event types are not
// an error.
func Decode(body []byte) (Envelope, *apperror.Error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, apperror.Wrap(apperror.InvalidPayload, err)
	}
	if err := validate.Struct(env); err != nil {
		return Envelope{}, apperror.Wrap(apperror.InvalidPayload, err)
	}
	env.Type = ParseType(env.RawType)
	return env, nil
}

func (e Envelope) PaymentIntent() (PaymentIntent, *apperror.Error) {
	var obj PaymentIntent
	if appErr := e.decodeObject(&obj); appErr != nil {
		return PaymentIntent{}, appErr
	}
	return obj, nil
}

func (e Envelope) Dispute() (Dispute, *apperror.Error) {
	var obj Dispute
	if appErr := e.decodeObject(&obj); appErr != nil {
		return Dispute{}, appErr
	}
	return obj, nil
}

func (e Envelope) Transfer() (Transfer, *apperror.Error) {
	var obj Transfer
	if appErr := e.decodeObject(&obj); appErr != nil {
		return Transfer{}, appErr
	}
	return obj, nil
}

func (e Envelope) decodeObject(target any) *apperror.Error {
	if len(e.Data.Object) == 0 {
		return apperror.Newf(apperror.InvalidPayload, "event %s has no data object", e.ID)
	}
	if err := json.Unmarshal(e.Data.Object, target); err != nil {
		return apperror.Wrap(apperror.InvalidPayload, err)
	}
	if err := validate.Struct(target); err != nil {
		return apperror.Wrap(apperror.InvalidPayload, err)
	}
	return nil
}
