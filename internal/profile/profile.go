// Package profile defines per-document-type extraction profiles: the
// critical fields a type is expected to carry, prompt hints for the
// generative backend, and semantic categories used by format validation.
// Built-in profiles cover the known document types; a YAML file can add to
// or override them.
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gleanhq/glean/internal/docmodel"
)

// Category is the semantic class of a field value, used to pick format
// checks and auto-correction rules.
type Category string

const (
	CategoryAmount Category = "amount"
	CategoryDate   Category = "date"
	CategoryEmail  Category = "email"
	CategoryPhone  Category = "phone"
	CategoryText   Category = "text"
)

// Profile bundles extraction knowledge for one document type.
type Profile struct {
	Type           docmodel.DocumentType `yaml:"type"`
	CriticalFields []string              `yaml:"critical_fields"`
	PromptHints    []string              `yaml:"prompt_hints"`
	Categories     map[string]Category   `yaml:"categories"`
}

// IsCritical reports whether the named field is critical for this type.
func (p Profile) IsCritical(name string) bool {
	for _, f := range p.CriticalFields {
		if f == name {
			return true
		}
	}
	return false
}

// CategoryOf returns the semantic category for a field, falling back to a
// name-pattern guess when the profile does not list it.
func (p Profile) CategoryOf(name string) Category {
	if c, ok := p.Categories[name]; ok {
		return c
	}
	return GuessCategory(name)
}

// Registry resolves document types to profiles.
type Registry struct {
	profiles map[docmodel.DocumentType]Profile
}

// NewRegistry returns a registry seeded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[docmodel.DocumentType]Profile)}
	for _, p := range builtins() {
		r.profiles[p.Type] = p
	}
	return r
}

// Lookup returns the profile for a type. Unknown types get an empty profile
// so extraction still runs in "extract everything" mode.
func (r *Registry) Lookup(t docmodel.DocumentType) Profile {
	if p, ok := r.profiles[t]; ok {
		return p
	}
	return Profile{Type: t}
}

// LoadFile merges profiles from a YAML file into the registry. File entries
// replace built-ins of the same type wholesale.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profiles file: %w", err)
	}

	var file struct {
		Profiles []Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse profiles file: %w", err)
	}

	for _, p := range file.Profiles {
		if p.Type == "" {
			return fmt.Errorf("profile entry missing type")
		}
		r.profiles[p.Type] = p
	}
	return nil
}

func builtins() []Profile {
	return []Profile{
		{
			Type:           docmodel.DocTypeInvoice,
			CriticalFields: []string{"vendor_name", "invoice_number", "total_amount", "invoice_date"},
			PromptHints: []string{
				"vendor_name: company issuing the invoice",
				"vendor_address: complete vendor address",
				"invoice_number: invoice or reference number",
				"invoice_date: date the invoice was issued",
				"due_date: payment due date if visible",
				"customer_name: bill-to customer name",
				"subtotal: amount before tax",
				"tax_amount: tax charged",
				"total_amount: final total",
				"currency: currency symbol or code",
				"line_items: individual items or services as an array",
			},
			Categories: map[string]Category{
				"subtotal":     CategoryAmount,
				"tax_amount":   CategoryAmount,
				"total_amount": CategoryAmount,
				"invoice_date": CategoryDate,
				"due_date":     CategoryDate,
				"email":        CategoryEmail,
				"phone":        CategoryPhone,
			},
		},
		{
			Type:           docmodel.DocTypeReceipt,
			CriticalFields: []string{"merchant_name", "total_amount", "transaction_date"},
			PromptHints: []string{
				"merchant_name: store or business name",
				"transaction_date: date of purchase",
				"transaction_time: time of purchase",
				"subtotal: subtotal before tax",
				"tax_amount: tax charged",
				"total_amount: final total paid",
				"payment_method: how payment was made",
				"items: purchased items as an array",
			},
			Categories: map[string]Category{
				"subtotal":         CategoryAmount,
				"tax_amount":       CategoryAmount,
				"total_amount":     CategoryAmount,
				"transaction_date": CategoryDate,
			},
		},
		{
			Type:           docmodel.DocTypeBusinessCard,
			CriticalFields: []string{"full_name", "company"},
			PromptHints: []string{
				"full_name: person's name",
				"company: company name",
				"job_title: role or title",
				"email: email address",
				"phone: phone number",
				"website: website URL",
			},
			Categories: map[string]Category{
				"email": CategoryEmail,
				"phone": CategoryPhone,
			},
		},
		{
			Type:           docmodel.DocTypeForm,
			CriticalFields: []string{},
			PromptHints: []string{
				"extract every labeled field and its filled-in value",
			},
		},
		{
			Type:           docmodel.DocTypeContract,
			CriticalFields: []string{"parties", "effective_date"},
			PromptHints: []string{
				"parties: names of the contracting parties",
				"effective_date: date the contract takes effect",
				"term: contract duration if stated",
			},
			Categories: map[string]Category{
				"effective_date": CategoryDate,
			},
		},
	}
}

// GuessCategory infers a semantic category from a field name.
func GuessCategory(name string) Category {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "amount", "total", "price", "cost", "subtotal", "tax"):
		return CategoryAmount
	case containsAny(lower, "date", "due"):
		return CategoryDate
	case strings.Contains(lower, "email"):
		return CategoryEmail
	case containsAny(lower, "phone", "fax", "tel"):
		return CategoryPhone
	default:
		return CategoryText
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
