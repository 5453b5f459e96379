// Package catalogcache provides the shared domain types for the metadata
// catalog caching and insight aggregation packages.
package catalogcache

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies one of the label entity types held in the lookup cache.
type EntityKind string

// Entity kinds, matching the catalog's canonical entity type names.
const (
	KindTag            EntityKind = "tag"
	KindClassification EntityKind = "classification"
	KindGlossary       EntityKind = "glossary"
	KindGlossaryTerm   EntityKind = "glossaryTerm"
)

// TagSource discriminates where a tag label originates from.
type TagSource string

const (
	// SourceClassification marks labels drawn from a classification hierarchy.
	SourceClassification TagSource = "CLASSIFICATION"

	// SourceGlossary marks labels drawn from a glossary hierarchy.
	SourceGlossary TagSource = "GLOSSARY"
)

// TagLabel is a label applied to a catalog entity. It carries the fully
// qualified name of the tag or glossary term and its source discriminator.
// Labels are used only as lookup keys and are never mutated.
type TagLabel struct {
	TagFQN string    `json:"tagFQN"`
	Source TagSource `json:"source"`
}

// Tag is a leaf or intermediate node in a classification hierarchy.
type Tag struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	FullyQualifiedName string    `json:"fullyQualifiedName"`
	Description        string    `json:"description,omitempty"`
	MutuallyExclusive  bool      `json:"mutuallyExclusive"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// Classification is the root of a tag hierarchy.
type Classification struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	FullyQualifiedName string    `json:"fullyQualifiedName"`
	Description        string    `json:"description,omitempty"`
	MutuallyExclusive  bool      `json:"mutuallyExclusive"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// Glossary is the root of a glossary term hierarchy.
type Glossary struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	FullyQualifiedName string    `json:"fullyQualifiedName"`
	Description        string    `json:"description,omitempty"`
	MutuallyExclusive  bool      `json:"mutuallyExclusive"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// GlossaryTerm is a leaf or intermediate node in a glossary hierarchy.
type GlossaryTerm struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	FullyQualifiedName string    `json:"fullyQualifiedName"`
	Description        string    `json:"description,omitempty"`
	MutuallyExclusive  bool      `json:"mutuallyExclusive"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// ValidSource reports whether s is a recognised tag source.
func ValidSource(s TagSource) bool {
	return s == SourceClassification || s == SourceGlossary
}

// String implements fmt.Stringer.
func (k EntityKind) String() string { return string(k) }

// String implements fmt.Stringer.
func (s TagSource) String() string { return string(s) }
