// Package insight post-processes search engine aggregation results into
// data insight chart series.
package insight

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Named sub-aggregations produced by the data insight search queries.
const (
	KeyTimestamp        = "timestamp"
	KeyServiceName      = "serviceName"
	KeyHasOwnerFraction = "hasOwnerFraction"
	KeyEntityCount      = "entityCount"
)

// Aggregations is a set of named aggregation results, as returned under the
// "aggregations" key of a search response.
type Aggregations map[string]*Aggregation

// Aggregation is one aggregation result. Metric aggregations (sums) carry a
// Value; multi-bucket aggregations (histograms, terms) carry Buckets.
type Aggregation struct {
	Value   float64
	Buckets []Bucket
}

// Bucket is one bucket of a multi-bucket aggregation, with its display key
// and any nested sub-aggregations.
type Bucket struct {
	Key          string
	DocCount     int64
	Aggregations Aggregations
}

// ParseSearchResult decodes the aggregations from a raw search response body.
func ParseSearchResult(data []byte) (Aggregations, error) {
	var envelope struct {
		Aggregations Aggregations `json:"aggregations"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return envelope.Aggregations, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Aggregation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["value"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &a.Value); err != nil {
			return fmt.Errorf("parsing aggregation value: %w", err)
		}
	}

	if b, ok := raw["buckets"]; ok {
		if err := json.Unmarshal(b, &a.Buckets); err != nil {
			return fmt.Errorf("parsing aggregation buckets: %w", err)
		}
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler. The display key is taken from
// key_as_string when present, falling back to key. Every other object-valued
// field is a nested sub-aggregation.
func (b *Bucket) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if ks, ok := raw["key_as_string"]; ok {
		if err := json.Unmarshal(ks, &b.Key); err != nil {
			return fmt.Errorf("parsing bucket key_as_string: %w", err)
		}
	} else if k, ok := raw["key"]; ok {
		var s string
		if err := json.Unmarshal(k, &s); err == nil {
			b.Key = s
		} else {
			var n float64
			if err := json.Unmarshal(k, &n); err != nil {
				return fmt.Errorf("parsing bucket key: %w", err)
			}
			b.Key = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}

	if dc, ok := raw["doc_count"]; ok {
		if err := json.Unmarshal(dc, &b.DocCount); err != nil {
			return fmt.Errorf("parsing bucket doc_count: %w", err)
		}
	}

	for name, value := range raw {
		switch name {
		case "key", "key_as_string", "doc_count":
			continue
		}
		if len(value) == 0 || value[0] != '{' {
			continue
		}
		var sub Aggregation
		if err := json.Unmarshal(value, &sub); err != nil {
			return fmt.Errorf("parsing sub-aggregation %s: %w", name, err)
		}
		if b.Aggregations == nil {
			b.Aggregations = make(Aggregations)
		}
		b.Aggregations[name] = &sub
	}

	return nil
}
