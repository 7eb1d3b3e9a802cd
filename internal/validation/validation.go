package validation

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/oklog/ulid/v2"
)

const (
	// MaxNameLength bounds product names.
	MaxNameLength = 200
	// MaxImageURLLength bounds stored image references.
	MaxImageURLLength = 2048
	// MinPasswordLength is the shortest accepted account password.
	MinPasswordLength = 8
	// MaxCollectionLength bounds remote collection names.
	MaxCollectionLength = 64
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateULID returns an error if the value is not a valid ULID.
// Parsing is case-insensitive and uses Crockford Base32 (no I, L, O, U).
func ValidateULID(field, value string) *ValidationError {
	if len(value) != ulid.EncodedSize {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be a valid ULID (%d characters)", ulid.EncodedSize),
		}
	}
	if _, err := ulid.ParseStrict(value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a valid ULID (invalid character)",
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidatePrice returns an error unless value is a finite number above zero.
func ValidatePrice(field string, value float64) *ValidationError {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return &ValidationError{
			Field:   field,
			Message: "must be greater than 0",
		}
	}
	return nil
}

// ValidateQuantity returns an error if value is negative.
func ValidateQuantity(field string, value int) *ValidationError {
	if value < 0 {
		return &ValidationError{
			Field:   field,
			Message: "must not be negative",
		}
	}
	return nil
}

// ValidateCollection returns an error if name is not a usable collection name:
// lowercase letters, digits, '-' and '_' only.
func ValidateCollection(field, name string) *ValidationError {
	if err := ValidateRequired(field, name); err != nil {
		return err
	}
	if err := ValidateMaxLength(field, name, MaxCollectionLength); err != nil {
		return err
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' && r != '_' {
			return &ValidationError{
				Field:   field,
				Message: "must contain only lowercase letters, digits, '-' or '_'",
			}
		}
	}
	return nil
}

// ValidateProductFields checks the user-editable fields of a product.
func ValidateProductFields(f types.DocumentFields) []ValidationError {
	var c Collector

	if err := ValidateRequired("name", f.Name); err != nil {
		c.Add(err)
	} else {
		c.Add(ValidateUTF8("name", f.Name))
		c.Add(ValidateNoNullBytes("name", f.Name))
		c.Add(ValidateMaxLength("name", f.Name, MaxNameLength))
	}
	c.Add(ValidatePrice("price", f.Price))
	c.Add(ValidateQuantity("quantity", f.Quantity))
	if f.ImageURL != nil {
		c.Add(ValidateMaxLength("image_url", *f.ImageURL, MaxImageURLLength))
	}

	return c.Errors()
}

// ParseProductInput converts raw form input into product fields, reporting
// every unparseable or invalid field.
func ParseProductInput(name, price, quantity string) (types.DocumentFields, []ValidationError) {
	var c Collector
	fields := types.DocumentFields{Name: strings.TrimSpace(name)}

	p, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
	if err != nil {
		c.Add(&ValidationError{Field: "price", Message: "must be a number"})
	} else {
		fields.Price = p
	}

	q, err := strconv.Atoi(strings.TrimSpace(quantity))
	if err != nil {
		c.Add(&ValidationError{Field: "quantity", Message: "must be a whole number"})
	} else {
		fields.Quantity = q
	}

	for _, verr := range ValidateProductFields(fields) {
		// A parse failure already describes the field.
		if hasField(c.errors, verr.Field) {
			continue
		}
		c.Add(&verr)
	}

	return fields, c.Errors()
}

// ValidateCredentials checks an email/password pair for sign-up or login.
func ValidateCredentials(creds types.Credentials) []ValidationError {
	var c Collector

	if err := ValidateRequired("email", creds.Email); err != nil {
		c.Add(err)
	} else if _, perr := mail.ParseAddress(creds.Email); perr != nil {
		c.Add(&ValidationError{Field: "email", Message: "must be a valid email address"})
	}

	if utf8.RuneCountInString(creds.Password) < MinPasswordLength {
		c.Add(&ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
	}

	return c.Errors()
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
