// Package catalog holds the read-only business data the bot answers from:
// services, FAQs, payment methods, reply templates and trigger wordlists.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Business describes the company the bot speaks for
type Business struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
	Hours    string `yaml:"hours"`
}

// Service is one sellable offering
type Service struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Aliases      []string `yaml:"aliases" json:"aliases,omitempty"`
	Price        int      `yaml:"price" json:"price"`
	DeliveryDays int      `yaml:"delivery_days" json:"delivery_days"`
	Description  string   `yaml:"description" json:"description"`
	Features     []string `yaml:"features" json:"features"`
}

// FAQ maps trigger keywords to a canned answer
type FAQ struct {
	ID       string   `yaml:"id"`
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

// PaymentMethod is an account customers can pay into
type PaymentMethod struct {
	Name    string `yaml:"name"`
	Details string `yaml:"details"`
}

// Catalog is the parsed knowledge base
type Catalog struct {
	Business              Business          `yaml:"business"`
	Services              []Service         `yaml:"services"`
	FAQs                  []FAQ             `yaml:"faqs"`
	PaymentMethods        []PaymentMethod   `yaml:"payment_methods"`
	Templates             map[string]string `yaml:"templates"`
	HumanHandoffTriggers  []string          `yaml:"human_handoff_triggers"`
	FrustrationIndicators []string          `yaml:"frustration_indicators"`

	compiled map[string]*template.Template
}

// Template names the bot relies on
const (
	TplGreeting            = "greeting"
	TplServiceList         = "service_list"
	TplServiceDetail       = "service_detail"
	TplPriceList           = "price_list"
	TplServicePrice        = "service_price"
	TplPaymentInstructions = "payment_instructions"
	TplPaymentProofRequest = "payment_proof_request"
	TplPaymentReceived     = "payment_received"
	TplPaymentApproved     = "payment_approved"
	TplPaymentRejected     = "payment_rejected"
	TplHandoffCustomer     = "handoff_customer"
	TplHandoffResumed      = "handoff_resumed"
	TplRejectionAck        = "rejection_ack"
	TplRateLimited         = "rate_limited"
	TplFallbackError       = "fallback_error"
	TplUnsupportedMedia    = "unsupported_media"
)

var requiredTemplates = []string{
	TplGreeting, TplServiceList, TplServiceDetail, TplPriceList, TplServicePrice,
	TplPaymentInstructions, TplPaymentProofRequest, TplPaymentReceived, TplPaymentApproved, TplPaymentRejected,
	TplHandoffCustomer, TplHandoffResumed, TplRejectionAck, TplRateLimited,
	TplFallbackError, TplUnsupportedMedia,
}

// Default returns the catalog embedded in the binary
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path yields the default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Business.Currency == "" {
		c.Business.Currency = "PKR"
	}
	seen := make(map[string]bool)
	for _, s := range c.Services {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("catalog: service needs id and name")
		}
		if seen[s.ID] {
			return fmt.Errorf("catalog: duplicate service id %q", s.ID)
		}
		seen[s.ID] = true
	}

	c.compiled = make(map[string]*template.Template, len(c.Templates))
	for name, body := range c.Templates {
		t, err := template.New(name).Parse(body)
		if err != nil {
			return fmt.Errorf("catalog: template %q: %w", name, err)
		}
		c.compiled[name] = t
	}
	for _, name := range requiredTemplates {
		if _, ok := c.compiled[name]; !ok {
			return fmt.Errorf("catalog: missing template %q", name)
		}
	}
	return nil
}

// Render executes a named template
func (c *Catalog) Render(name string, data interface{}) (string, error) {
	t, ok := c.compiled[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Service looks a service up by id
func (c *Catalog) Service(id string) (*Service, bool) {
	for i := range c.Services {
		if c.Services[i].ID == id {
			return &c.Services[i], true
		}
	}
	return nil, false
}

// Names returns every lowercase name and alias for the service
func (s *Service) Names() []string {
	names := []string{strings.ToLower(s.Name)}
	for _, a := range s.Aliases {
		names = append(names, strings.ToLower(a))
	}
	return names
}

// MatchFAQ returns the first FAQ with a keyword contained in text
func (c *Catalog) MatchFAQ(text string) (*FAQ, bool) {
	lower := strings.ToLower(text)
	for i := range c.FAQs {
		for _, kw := range c.FAQs[i].Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return &c.FAQs[i], true
			}
		}
	}
	return nil, false
}
