// Package intent assigns an intent and a confidence to free-text customer
// messages using a fixed table of regular expressions, and decides when a
// classified message must be escalated to a human.
package intent

// Intent is the classified purpose of an inbound message
type Intent string

const (
	Greeting            Intent = "GREETING"
	ServiceInquiry      Intent = "SERVICE_INQUIRY"
	PricingInquiry      Intent = "PRICING_INQUIRY"
	OrderRequest        Intent = "ORDER_REQUEST"
	PaymentInquiry      Intent = "PAYMENT_INQUIRY"
	PaymentConfirmation Intent = "PAYMENT_CONFIRMATION"
	HumanRequest        Intent = "HUMAN_REQUEST"
	Frustration         Intent = "FRUSTRATION" // internal, always escalated to HumanRequest
	Confirmation        Intent = "CONFIRMATION"
	Rejection           Intent = "REJECTION"
	FAQ                 Intent = "FAQ"
	OutOfScope          Intent = "OUT_OF_SCOPE"
	GeneralChat         Intent = "GENERAL_CHAT"
)

// Order is the fixed enumeration order. Patterns are evaluated in this
// order and confidence ties go to the earlier intent.
var Order = []Intent{
	Greeting,
	ServiceInquiry,
	PricingInquiry,
	OrderRequest,
	PaymentInquiry,
	PaymentConfirmation,
	HumanRequest,
	Frustration,
	Confirmation,
	Rejection,
	FAQ,
	OutOfScope,
	GeneralChat,
}

// Context carries facts about the message that are not in its text
type Context struct {
	HasAttachment bool
}

// Metadata is extra evidence attached to a classification
type Metadata struct {
	HasMedia    bool   `json:"hasMedia,omitempty"`
	ServiceID   string `json:"serviceId,omitempty"`
	ServiceName string `json:"serviceName,omitempty"`
	Frustrated  bool   `json:"frustrated,omitempty"`
}

// Result is the output of Classify
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Metadata   Metadata `json:"metadata"`
}

// Fixed confidences
const (
	AttachmentConfidence     = 0.85
	NoMatchConfidence        = 0.6
	BaseConfidence           = 0.7
	ShortGreetingConfidence  = 0.95
	HumanRequestConfidence   = 0.95
	FrustrationConfidence    = 0.9
	PaymentConfirmConfidence = 0.85
	LongServiceConfidence    = 0.75
	ServiceNameConfidence    = 0.8

	shortGreetingMaxLen = 20 // greetings shorter than this are boosted
	longServiceMinLen   = 30 // service inquiries longer than this are boosted
)
