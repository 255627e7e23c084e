package crew

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDetails is returned when rental details fail validation
// before any model call is made.
var ErrInvalidDetails = errors.New("crew: invalid rental details")

// RentalDetails are the facts of one tenancy, collected from the user
// before drafting begins.
type RentalDetails struct {
	LandlordName    string  `json:"landlord_name"`
	TenantName      string  `json:"tenant_name"`
	PropertyAddress string  `json:"property_address"`
	RentAmount      float64 `json:"rent_amount"`
	SecurityDeposit float64 `json:"security_deposit,omitempty"`
	LeaseTermMonths int     `json:"lease_term"`
	// StartDate is the tenancy start in YYYY-MM-DD form; optional.
	StartDate string `json:"start_date,omitempty"`
	// PaymentDueDay is the day of the month rent falls due; 0 leaves it
	// to the drafter.
	PaymentDueDay int      `json:"payment_due_day,omitempty"`
	Jurisdiction  string   `json:"jurisdiction"`
	Utilities     []string `json:"utilities,omitempty"`
	PetsAllowed   bool     `json:"pets_allowed,omitempty"`
	// ExtraTerms carries optional free-form provisions the user wants
	// included, e.g. pet policy or parking.
	ExtraTerms []string `json:"extra_terms,omitempty"`
}

// Validate checks the details before they reach the drafting pipeline.
// All checks are local; a negative rent amount must never be the
// model's problem to notice.
func (d RentalDetails) Validate() error {
	var problems []string
	if strings.TrimSpace(d.LandlordName) == "" {
		problems = append(problems, "landlord_name is required")
	}
	if strings.TrimSpace(d.TenantName) == "" {
		problems = append(problems, "tenant_name is required")
	}
	if strings.TrimSpace(d.PropertyAddress) == "" {
		problems = append(problems, "property_address is required")
	}
	if d.RentAmount <= 0 {
		problems = append(problems, fmt.Sprintf("rent_amount must be positive, got %v", d.RentAmount))
	}
	if d.SecurityDeposit < 0 {
		problems = append(problems, fmt.Sprintf("security_deposit must not be negative, got %v", d.SecurityDeposit))
	}
	if d.LeaseTermMonths < 1 {
		problems = append(problems, fmt.Sprintf("lease_term must be at least 1 month, got %d", d.LeaseTermMonths))
	}
	if d.PaymentDueDay < 0 || d.PaymentDueDay > 28 {
		problems = append(problems, fmt.Sprintf("payment_due_day must be between 1 and 28, got %d", d.PaymentDueDay))
	}
	if d.StartDate != "" {
		if _, err := time.Parse("2006-01-02", d.StartDate); err != nil {
			problems = append(problems, fmt.Sprintf("start_date must be YYYY-MM-DD, got %q", d.StartDate))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDetails, strings.Join(problems, "; "))
	}
	return nil
}

// JSON renders the details as indented JSON for embedding into agent
// context.
func (d RentalDetails) JSON() string {
	b, _ := json.MarshalIndent(d, "", "  ")
	return string(b)
}
