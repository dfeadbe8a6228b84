package pesepay

import "github.com/mukando/payment-service/internal/domain"

// GenericMethodCode is sent when a method type has no dedicated gateway code.
const GenericMethodCode = "PZW201"

// methodCodes maps platform method types to the gateway's payment method
// codes.
var methodCodes = map[string]string{
	domain.MethodEcocash:  "PZW211",
	domain.MethodOneMoney: "PZW212",
	domain.MethodTelecash: "PZW213",
	domain.MethodInnbucks: "PZW215",
	"zimswitch":           "PZW204",
	"card":                "PZW203",
	"visa":                "PZW203",
	"mastercard":          "PZW203",
}

// MethodCode returns the gateway payment method code for a platform method
// type, defaulting to the generic code for unmapped types.
func MethodCode(methodType string) string {
	if code, ok := methodCodes[methodType]; ok {
		return code
	}
	return GenericMethodCode
}

// supportedMethods is the prioritized list surfaced to the platform. EcoCash
// first: it settles the overwhelming majority of mukando contributions.
var supportedMethods = []domain.PaymentMethod{
	{Type: domain.MethodEcocash, Name: "EcoCash", Fee: 2.5, FeeType: "percentage", DailyLimit: 1000, Status: "active"},
	{Type: domain.MethodOneMoney, Name: "OneMoney", Fee: 2.0, FeeType: "percentage", DailyLimit: 500, Status: "active"},
	{Type: domain.MethodTelecash, Name: "TeleCash", Fee: 2.0, FeeType: "percentage", DailyLimit: 500, Status: "active"},
	{Type: domain.MethodInnbucks, Name: "InnBucks", Fee: 1.5, FeeType: "percentage", DailyLimit: 2000, Status: "active"},
	{Type: "visa", Name: "Visa", Fee: 3.5, FeeType: "percentage", DailyLimit: 10000, Status: "active"},
	{Type: "mastercard", Name: "Mastercard", Fee: 3.5, FeeType: "percentage", DailyLimit: 10000, Status: "active"},
	{Type: "zimswitch", Name: "ZimSwitch", Fee: 1.0, FeeType: "percentage", DailyLimit: 5000, Status: "active"},
}

// SupportedMethods returns the static prioritized list of payment methods.
// The list is stable across calls and never fails.
func (c *Client) SupportedMethods() []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, len(supportedMethods))
	copy(out, supportedMethods)
	return out
}
