package scoring

import (
	"sort"
	"sync"
)

// CategoryVocabulary maps the distinct values of one categorical field to
// integer codes. Training values get codes by sorted rank; values first seen
// at inference time are appended with code = current size. Codes are never
// reassigned.
type CategoryVocabulary struct {
	field  string
	mu     sync.RWMutex
	codes  map[string]int
	values []string
}

// NewCategoryVocabulary builds the vocabulary from training values.
func NewCategoryVocabulary(field string, training []string) *CategoryVocabulary {
	uniq := make(map[string]struct{}, len(training))
	for _, v := range training {
		uniq[v] = struct{}{}
	}
	values := make([]string, 0, len(uniq))
	for v := range uniq {
		values = append(values, v)
	}
	sort.Strings(values)

	codes := make(map[string]int, len(values))
	for i, v := range values {
		codes[v] = i
	}
	return &CategoryVocabulary{field: field, codes: codes, values: values}
}

// Field is the column this vocabulary encodes.
func (v *CategoryVocabulary) Field() string { return v.field }

// Lookup returns the code of a known value.
func (v *CategoryVocabulary) Lookup(value string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	code, ok := v.codes[value]
	return code, ok
}

// Encode returns the code for value, appending it when unseen. added reports
// whether this call performed the append; concurrent callers racing on the
// same new value observe one code and exactly one of them sees added.
func (v *CategoryVocabulary) Encode(value string) (code int, added bool) {
	if code, ok := v.Lookup(value); ok {
		return code, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if code, ok := v.codes[value]; ok {
		return code, false
	}
	code = len(v.values)
	v.codes[value] = code
	v.values = append(v.values, value)
	return code, true
}

// Len is the number of known values.
func (v *CategoryVocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.values)
}

// Values returns a copy of the known values in code order.
func (v *CategoryVocabulary) Values() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.values...)
}
