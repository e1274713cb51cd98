package issuance

import (
	"fmt"
	"sort"
	"time"

	dErrors "certledger/pkg/domain-errors"
)

// requiredFields is the fixed certificate schema. All are strings; anything
// outside this set plus the optional metadata object is rejected.
var requiredFields = []string{
	"certificateId",
	"issuer",
	"studentName",
	"role",
	"startDate",
	"endDate",
	"issuedOn",
}

// ValidateCertificateData checks the fixed required-field schema before any
// cryptographic or ledger work happens.
func ValidateCertificateData(data map[string]any) error {
	if len(data) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "certificate data is required")
	}

	allowed := make(map[string]struct{}, len(requiredFields)+1)
	for _, field := range requiredFields {
		allowed[field] = struct{}{}

		v, ok := data[field]
		if !ok {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("missing required field %q", field))
		}
		s, isString := v.(string)
		if !isString {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("field %q must be a string", field))
		}
		if s == "" {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("field %q must not be empty", field))
		}
	}
	allowed["metadata"] = struct{}{}

	if meta, ok := data["metadata"]; ok {
		if _, isObject := meta.(map[string]any); !isObject {
			return dErrors.New(dErrors.CodeInvalidInput, "field \"metadata\" must be an object")
		}
	}

	var extras []string
	for key := range data {
		if _, ok := allowed[key]; !ok {
			extras = append(extras, key)
		}
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unexpected fields: %v", extras))
	}
	return nil
}

// issuedOnLayouts covers the date formats callers have historically sent.
var issuedOnLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02-01-2006",
}

// parseIssuedOn turns the certificate's issuedOn string into the record's
// IssuedAt timestamp. An unparseable value falls back to the request time;
// the string itself stays untouched inside the signed data either way.
func parseIssuedOn(value string, fallback time.Time) time.Time {
	for _, layout := range issuedOnLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}
