package model

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Seniority levels accepted by the person search.
var Seniorities = []string{
	"Founder/Owner",
	"C-Suite",
	"Partner",
	"Vice President",
	"Head",
	"Director",
	"Manager",
	"Senior",
	"Intern",
	"Entry",
}

// IsSeniority reports whether s is one of the provider seniority values.
func IsSeniority(s string) bool {
	for _, v := range Seniorities {
		if v == s {
			return true
		}
	}
	return false
}

// SearchRequest holds the parameters of a single qualification run.
type SearchRequest struct {
	// Company-level discovery filters.
	Industries []string `json:"industries,omitempty" validate:"dive,required"`
	Keywords   []string `json:"keywords,omitempty" validate:"dive,required"`
	// Locations are accepted but not sent to discovery until the provider's
	// location enum is mapped.
	Locations         []string `json:"locations,omitempty"`
	VerifiedEmailOnly bool     `json:"verified_email_only,omitempty"`

	// Seniority applies only to the person search stage.
	Seniority []string `json:"seniority,omitempty" validate:"dive,seniority"`

	TargetCount  int `json:"target_count" validate:"min=1,max=1000"`
	MaxProcessed int `json:"max_processed" validate:"min=1,max=10000"`

	// OurCompanyContext describes the searcher's company for product-fit prompts.
	OurCompanyContext string `json:"our_company_context,omitempty" validate:"max=4000"`

	Origin Origin `json:"origin"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("seniority", func(fl validator.FieldLevel) bool {
		return IsSeniority(fl.Field().String())
	})
	return v
}

// Validate checks field constraints.
func (r SearchRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return eris.Errorf("invalid search request: %s", strings.Join(msgs, "; "))
		}
		return eris.Wrap(err, "invalid search request")
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "seniority":
		return "unknown seniority " + quote(fe.Value()) + " (valid: " + strings.Join(Seniorities, ", ") + ")"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "required":
		return fe.Field() + " must not contain empty values"
	default:
		return fe.Field() + " failed " + fe.Tag()
	}
}

func quote(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// CriteriaJSON returns the discovery and qualification criteria as JSON, for
// tagging persisted records and exports.
func (r SearchRequest) CriteriaJSON() string {
	b, err := json.Marshal(struct {
		Industries        []string `json:"industries,omitempty"`
		Keywords          []string `json:"keywords,omitempty"`
		Locations         []string `json:"locations,omitempty"`
		Seniority         []string `json:"seniority,omitempty"`
		VerifiedEmailOnly bool     `json:"verified_email_only,omitempty"`
	}{r.Industries, r.Keywords, r.Locations, r.Seniority, r.VerifiedEmailOnly})
	if err != nil {
		return "{}"
	}
	return string(b)
}
