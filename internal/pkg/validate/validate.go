// Package validate checks API path and query parameters before they reach the cluster.
package validate

import (
	"k8s.io/apimachinery/pkg/util/validation"
)

// SessionIDMaxLen bounds session ids supplied by the console.
const SessionIDMaxLen = 128

// Namespace validates a namespace name (DNS label).
func Namespace(ns string) bool {
	return ns != "" && len(validation.IsDNS1123Label(ns)) == 0
}

// Name validates a resource name (DNS subdomain).
func Name(name string) bool {
	return name != "" && len(validation.IsDNS1123Subdomain(name)) == 0
}

// SessionID validates a visualize session id: alphanumeric, hyphen, underscore; 1–SessionIDMaxLen.
func SessionID(id string) bool {
	if id == "" || len(id) > SessionIDMaxLen {
		return false
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}
