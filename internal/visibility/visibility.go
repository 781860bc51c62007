// Package visibility redacts entity records for viewers without a privileged
// relationship to the entity.
//
// Every entity kind (profile, organization, event, project) pairs its record
// with a visibility settings record holding one boolean per redactable field.
// A field whose flag is false is replaced by the neutral value of its
// category; all other fields pass through unchanged. Classification is driven
// by one declarative Table per kind so that every kind shares the same logic.
package visibility

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind identifies an entity kind that carries visibility settings.
type Kind string

// Supported entity kinds.
const (
	KindProfile      Kind = "profile"
	KindOrganization Kind = "organization"
	KindEvent        Kind = "event"
	KindProject      Kind = "project"
)

// IDField is the identifier key present on every record. It is never redacted.
const IDField = "id"

// BackReference returns the settings key linking a settings row back to its
// entity, e.g. "profileId".
func (k Kind) BackReference() string {
	return string(k) + "Id"
}

// Record is an entity serialized as field name to value.
type Record map[string]any

// Settings maps each redactable field of a record to whether it is public.
type Settings map[string]bool

// Category is the semantic type of a field, which decides its redacted value.
type Category int

// Field categories. The zero value is not a valid category.
const (
	categoryUnknown Category = iota
	// Text fields are redacted to "".
	Text
	// List fields (relations, tags, areas) are redacted to an empty slice.
	List
	// Timestamp fields are redacted to Epoch.
	Timestamp
	// AssumeTrue flags (termsAccepted, published, canceled) are redacted to true.
	AssumeTrue
	// Score fields are redacted to 0.
	Score
	// Nullable covers every other optional scalar or relation; redacted to nil.
	Nullable
)

// Epoch is the sentinel timestamp substituted for private timestamp fields.
var Epoch = time.Unix(0, 0).UTC()

// String returns the category name.
func (c Category) String() string {
	switch c {
	case Text:
		return "text"
	case List:
		return "list"
	case Timestamp:
		return "timestamp"
	case AssumeTrue:
		return "assume_true"
	case Score:
		return "score"
	case Nullable:
		return "nullable"
	default:
		return "unknown"
	}
}

// Empty returns the neutral value for the category.
func (c Category) Empty() any {
	switch c {
	case Text:
		return ""
	case List:
		return []any{}
	case Timestamp:
		return Epoch
	case AssumeTrue:
		return true
	case Score:
		return 0
	default:
		return nil
	}
}

// Table classifies the redactable fields of one entity kind.
type Table map[string]Category

// Classify returns the category of field and whether the table knows it.
func (t Table) Classify(field string) (Category, bool) {
	c, ok := t[field]
	if !ok || c == categoryUnknown {
		return categoryUnknown, false
	}
	return c, true
}

// Fields returns the classified field names in sorted order.
func (t Table) Fields() []string {
	fields := make([]string, 0, len(t))
	for f := range t {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Schema errors.
var (
	// ErrSchemaMismatch is returned by ValidateSchema when a settings schema
	// and a classification table disagree.
	ErrSchemaMismatch = errors.New("visibility schema mismatch")

	// ErrSchemaDrift is returned by a strict Filter when a record or its
	// settings contain fields the classification table does not cover.
	ErrSchemaDrift = errors.New("visibility schema drift")

	// ErrUnknownKind is returned when no table is registered for a kind.
	ErrUnknownKind = errors.New("unknown entity kind")
)

// ValidateSchema checks that the settings fields declared for kind match the
// classification table exactly. Every mismatch is reported in the joined
// error so drift can be fixed in one pass.
func ValidateSchema(kind Kind, table Table, settingsFields []string) error {
	declared := make(map[string]struct{}, len(settingsFields))
	var errs []error

	for _, f := range settingsFields {
		if f == IDField || f == kind.BackReference() {
			continue
		}
		declared[f] = struct{}{}
		if _, ok := table.Classify(f); !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s has no category", ErrSchemaMismatch, kind, f))
		}
	}
	for _, f := range table.Fields() {
		if _, ok := declared[f]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s is classified but not a settings field", ErrSchemaMismatch, kind, f))
		}
	}
	return errors.Join(errs...)
}
