package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix is the first segment of every cache key.
const KeyPrefix = "rsvp"

// Key identifies a cached read by resource endpoint, operation and parameters.
type Key struct {
	// Endpoint is the resource endpoint (e.g., "rsvps")
	Endpoint string

	// Operation is the dispatcher operation name (e.g., "fetchAll")
	Operation string

	// Params are the operation parameters (filters, id, page, ...)
	Params map[string]any
}

// String generates a deterministic cache key string.
// Format: rsvp:endpoint:operation:param1=json1:param2=json2
//
// Example:
//
//	rsvp:rsvps:getPaginated:limit=10:page=2:status="attending"
//
// Parameters are sorted by name and values are JSON encoded (encoding/json
// orders map keys), so the order in which a caller builds Params never
// changes the key. Nil values are omitted: an unset filter and a missing
// filter share a key.
func (k Key) String() string {
	parts := []string{k.Prefix()}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name, value := range k.Params {
			if value == nil {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, encodeParam(k.Params[name])))
		}
	}

	return strings.Join(parts, ":")
}

// Prefix returns the key without parameters. It is a substring of every key
// built for the same endpoint and operation, which makes it the pattern used
// to invalidate all variants of an operation.
func (k Key) Prefix() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}
	if k.Operation != "" {
		parts = append(parts, k.Operation)
	}

	return strings.Join(parts, ":")
}

func encodeParam(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
