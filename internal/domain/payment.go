package domain

import "encoding/json"

// PaymentStatus is the normalized payment state. Raw gateway status strings
// are mapped into this set at the client boundary and never leak upstream.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether the status ends a payment attempt.
func (s PaymentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Mobile-money method types. These authorize via a USSD prompt on the
// customer's phone rather than an in-app code.
const (
	MethodEcocash  = "ecocash"
	MethodOneMoney = "onemoney"
	MethodTelecash = "telecash"
	MethodInnbucks = "innbucks"
)

// IsMobileMoney reports whether the method type settles through a carrier
// wallet.
func IsMobileMoney(methodType string) bool {
	switch methodType {
	case MethodEcocash, MethodOneMoney, MethodTelecash, MethodInnbucks:
		return true
	}
	return false
}

// PaymentMethod describes one way a contribution can be paid.
type PaymentMethod struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Fee        float64 `json:"fee"`
	FeeType    string  `json:"fee_type"`
	DailyLimit float64 `json:"daily_limit"`
	Status     string  `json:"status"`
}

// PaymentRequest is a request to collect a contribution, loan repayment or
// subscription through the gateway. Currency defaults to USD when empty.
type PaymentRequest struct {
	Amount          float64       `json:"amount" binding:"required,gt=0"`
	Currency        string        `json:"currency" binding:"omitempty,len=3"`
	CustomerName    string        `json:"customer_name"`
	CustomerSurname string        `json:"customer_surname"`
	CustomerEmail   string        `json:"customer_email" binding:"omitempty,email"`
	CustomerPhone   string        `json:"customer_phone" binding:"omitempty,zimphone"`
	Reference       string        `json:"reference"`
	Purpose         string        `json:"purpose"`
	Method          PaymentMethod `json:"method"`
	ReturnURL       string        `json:"return_url" binding:"omitempty,url"`
	ResultURL       string        `json:"result_url" binding:"omitempty,url"`
}

// PaymentResult is the outcome of a gateway call. Paid is derived from the
// normalized status, never copied from a raw gateway field.
type PaymentResult struct {
	Success          bool            `json:"success"`
	Status           PaymentStatus   `json:"status"`
	Paid             bool            `json:"paid"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	Reference        string          `json:"reference"`
	PaymentURL       string          `json:"payment_url,omitempty"`
	PollURL          string          `json:"poll_url,omitempty"`
	Amount           float64         `json:"amount,omitempty"`
	CurrencyCode     string          `json:"currency_code,omitempty"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	CustomerPhone    string          `json:"customer_phone,omitempty"`
	ReasonForPayment string          `json:"reason_for_payment,omitempty"`
	PaymentDate      string          `json:"payment_date,omitempty"`
	Note             string          `json:"note,omitempty"`
	ResponseData     json.RawMessage `json:"response_data,omitempty"`
}
