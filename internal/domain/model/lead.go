// Package model contains domain models passed between layers.
package model

import "strings"

// Lead property keys that are required on ingestion.
const (
	PropFirstName = "first_name"
	PropLastName  = "last_name"
	PropEmail     = "email"
)

// Lead is an inbound customer lead. Email is the business key.
type Lead struct {
	FirstName string
	LastName  string
	Email     string
	// Properties carries every submitted attribute, required ones included.
	Properties map[string]any
}

// LeadFromProperties builds a Lead from an open property map. Required
// attributes that are missing or not strings are left empty.
func LeadFromProperties(props map[string]any) Lead {
	str := func(key string) string {
		v, _ := props[key].(string)
		return strings.TrimSpace(v)
	}
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return Lead{
		FirstName:  str(PropFirstName),
		LastName:   str(PropLastName),
		Email:      str(PropEmail),
		Properties: copied,
	}
}

// LeadRecord is the synced representation of a lead, as cached and listed.
type LeadRecord struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}
