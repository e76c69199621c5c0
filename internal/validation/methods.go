// Package validation checks HTTP request bodies before they become ledger
// intents. Errors are collected per field so a client sees all of them at once.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// identifierRegex matches user, currency and configuration identifiers.
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// Validator defines validation methods
type Validator struct {
	Errors map[string]string
}

// New creates a new validator
func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid checks if there are any validation errors
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError adds an error to the validator. The first error for a field wins.
func (v *Validator) AddError(field, message string) {
	if _, exists := v.Errors[field]; !exists {
		v.Errors[field] = message
	}
}

// Check adds an error if the condition is false
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.AddError(field, message)
	}
}

// Required checks if a string is not empty
func (v *Validator) Required(field, value string) {
	v.Check(strings.TrimSpace(value) != "", field, "must not be empty")
}

// Identifier checks that value is a non-empty key of at most 64 safe characters.
func (v *Validator) Identifier(field, value string) {
	v.Required(field, value)
	v.MaxLength(field, value, 64)
	if value != "" {
		v.Check(identifierRegex.MatchString(value), field, "may only contain letters, digits and _ . : -")
	}
}

// MaxLength checks if a string has at most n characters
func (v *Validator) MaxLength(field string, value string, n int) {
	v.Check(len(value) <= n, field, fmt.Sprintf("must not be more than %d characters long", n))
}

// Amount checks that value is a finite number in [min, max].
func (v *Validator) Amount(field string, value, lo, hi float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		v.AddError(field, "must be a finite number")
		return
	}
	v.Check(value >= lo && value <= hi, field, fmt.Sprintf("must be between %v and %v", lo, hi))
}

// FutureMillis checks that a unix millisecond timestamp is after now.
func (v *Validator) FutureMillis(field string, value, now int64) {
	v.Check(value > now, field, "must be in the future")
}

// Error joins the collected errors into one message with a stable field order.
func (v *Validator) Error() string {
	fields := make([]string, 0, len(v.Errors))
	for f := range v.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+v.Errors[f])
	}
	return strings.Join(parts, "; ")
}
