package visibility

import "sort"

// Diagnostic reasons.
const (
	// ReasonUnclassified marks a settings key the kind's table does not know.
	ReasonUnclassified = "unclassified"
	// ReasonMissingSetting marks a record field that has no settings flag.
	ReasonMissingSetting = "missing_setting"
)

// Diagnostic describes one inconsistency between a record, its settings and
// the classification table.
type Diagnostic struct {
	Kind   Kind
	Field  string
	Reason string
}

// Redact returns a copy of entity in which every field whose settings flag is
// false holds the neutral value of its category. The output always has the
// same keys as entity, and id is never touched.
//
// Settings keys the table cannot classify, and record fields without a
// settings flag, are left unchanged and returned as diagnostics.
func Redact(kind Kind, table Table, entity Record, settings Settings) (Record, []Diagnostic) {
	out := make(Record, len(entity))
	for k, v := range entity {
		out[k] = v
	}

	backRef := kind.BackReference()
	var diags []Diagnostic

	for _, field := range sortedKeys(settings) {
		if field == IDField || field == backRef {
			continue
		}
		category, ok := table.Classify(field)
		if !ok {
			diags = append(diags, Diagnostic{Kind: kind, Field: field, Reason: ReasonUnclassified})
			continue
		}
		if settings[field] {
			continue
		}
		if _, present := entity[field]; !present {
			continue
		}
		out[field] = category.Empty()
	}

	for _, field := range sortedRecordKeys(entity) {
		if field == IDField || field == backRef {
			continue
		}
		if _, ok := settings[field]; !ok {
			diags = append(diags, Diagnostic{Kind: kind, Field: field, Reason: ReasonMissingSetting})
		}
	}

	return out, diags
}

func sortedKeys(s Settings) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRecordKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
