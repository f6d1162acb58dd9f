package editors

import (
	"fmt"
	"sort"
	"strings"

	"modelcards/api/internal/catalog"
	"modelcards/api/internal/fieldpath"
)

// StringList edits an array of strings. Each mutation writes the whole
// array at once.
type StringList struct {
	field
}

func NewStringList(b Binding, path string, opts ...Option) *StringList {
	return &StringList{field: newField(b, path, opts)}
}

func (l *StringList) Items() []string {
	value, ok := l.value()
	if !ok {
		return []string{}
	}
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if text, ok := item.(string); ok {
				out = append(out, text)
			} else if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return []string{}
	}
}

// Add appends the trimmed item unless it is empty or already present.
func (l *StringList) Add(item string) bool {
	item = strings.TrimSpace(item)
	if item == "" {
		return false
	}
	items := l.Items()
	for _, existing := range items {
		if existing == item {
			return false
		}
	}
	l.binding.UpdateField(l.path, append(items, item))
	return true
}

func (l *StringList) Remove(index int) bool {
	items := l.Items()
	if index < 0 || index >= len(items) {
		return false
	}
	next := append(items[:index:index], items[index+1:]...)
	l.binding.UpdateField(l.path, next)
	return true
}

// RecordList edits an array of structured items such as evidence or
// guidelines. Item edits replace the entire array.
type RecordList struct {
	field
	normalize func(any) any
	expanded  map[int]bool
}

type RecordListOption func(*RecordList)

// WithItemNormalizer converts each stored item before it is read or
// rewritten.
func WithItemNormalizer(fn func(any) any) RecordListOption {
	return func(l *RecordList) { l.normalize = fn }
}

func WithFieldOptions(opts ...Option) RecordListOption {
	return func(l *RecordList) {
		for _, opt := range opts {
			opt(&l.field)
		}
	}
}

func NewRecordList(b Binding, path string, opts ...RecordListOption) *RecordList {
	l := &RecordList{field: newField(b, path, nil), expanded: map[int]bool{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Items returns one entry per stored item. Items that are not objects are
// shown as {"value": item}; they stay in the array untouched on write.
func (l *RecordList) Items() []map[string]any {
	raw := l.stored()
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			obj = map[string]any{"value": item}
		}
		out = append(out, obj)
	}
	return out
}

// stored reads the array with the normalizer applied and objects cloned.
func (l *RecordList) stored() []any {
	value, ok := l.value()
	if !ok {
		return []any{}
	}
	raw, ok := value.([]any)
	if !ok {
		normalized, err := fieldpath.Normalize(value)
		if err != nil {
			return []any{}
		}
		if raw, ok = normalized.([]any); !ok {
			return []any{}
		}
	}
	out := make([]any, 0, len(raw))
	for _, item := range raw {
		if l.normalize != nil {
			item = l.normalize(item)
		}
		if obj, ok := item.(map[string]any); ok {
			item = fieldpath.Clone(obj)
		}
		out = append(out, item)
	}
	return out
}

func (l *RecordList) Len() int {
	return len(l.stored())
}

func (l *RecordList) Add(item map[string]any) {
	items := append(l.stored(), fieldpath.Clone(item))
	l.binding.UpdateField(l.path, items)
	l.expanded[len(items)-1] = true
}

func (l *RecordList) Remove(index int) bool {
	items := l.stored()
	if index < 0 || index >= len(items) {
		return false
	}
	l.binding.UpdateField(l.path, append(items[:index:index], items[index+1:]...))

	shifted := make(map[int]bool, len(l.expanded))
	for i, open := range l.expanded {
		switch {
		case i < index:
			shifted[i] = open
		case i > index:
			shifted[i-1] = open
		}
	}
	l.expanded = shifted
	return true
}

// SetAttr updates one attribute of one item. An empty string or nil value
// removes the attribute. Items that are not objects cannot take attributes.
func (l *RecordList) SetAttr(index int, attr string, value any) bool {
	items := l.stored()
	if index < 0 || index >= len(items) || attr == "" {
		return false
	}
	obj, ok := items[index].(map[string]any)
	if !ok {
		return false
	}
	if value == nil || value == "" {
		items[index] = fieldpath.Delete(obj, attr)
	} else {
		items[index] = fieldpath.Set(obj, attr, value)
	}
	l.binding.UpdateField(l.path, items)
	return true
}

func (l *RecordList) Expanded(index int) bool {
	return l.expanded[index]
}

func (l *RecordList) Toggle(index int) {
	l.expanded[index] = !l.expanded[index]
}

// ExpandedItems lists open item indexes in order.
func (l *RecordList) ExpandedItems() []int {
	out := make([]int, 0, len(l.expanded))
	for i, open := range l.expanded {
		if open {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// Object edits an optional single sub-record such as the regulatory block
// or the partOf relation. Every change writes the whole object.
type Object struct {
	field
	expanded bool
}

func NewObject(b Binding, path string, opts ...Option) *Object {
	return &Object{field: newField(b, path, opts)}
}

func (o *Object) Present() bool {
	value, ok := o.value()
	if !ok {
		return false
	}
	_, isObj := value.(map[string]any)
	return isObj
}

func (o *Object) current() map[string]any {
	value, ok := o.value()
	if !ok {
		return map[string]any{}
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return fieldpath.Clone(obj)
}

// Get reads a relative path inside the object, e.g. "fda.clearanceNumber".
func (o *Object) Get(attr string) (any, bool) {
	return fieldpath.Get(o.current(), attr)
}

func (o *Object) Set(attr string, value any) {
	var next map[string]any
	if value == nil || value == "" {
		next = fieldpath.Delete(o.current(), attr)
	} else {
		next = fieldpath.Set(o.current(), attr, value)
	}
	o.binding.UpdateField(o.path, next)
}

// Clear removes the object by writing null.
func (o *Object) Clear() {
	o.binding.UpdateField(o.path, nil)
}

func (o *Object) Expanded() bool {
	return o.expanded
}

func (o *Object) Toggle() {
	o.expanded = !o.expanded
}

func Evidence(b Binding, opts ...Option) *RecordList {
	return NewRecordList(b, "evidence", WithItemNormalizer(catalog.NormalizeEvidenceValue), WithFieldOptions(opts...))
}

func Guidelines(b Binding, opts ...Option) *RecordList {
	return NewRecordList(b, "guidelines", WithFieldOptions(opts...))
}

func IntegratedModules(b Binding, opts ...Option) *RecordList {
	return NewRecordList(b, "integratedModules", WithFieldOptions(opts...))
}

func DosePredictionModels(b Binding, opts ...Option) *RecordList {
	return NewRecordList(b, "dosePredictionModels", WithFieldOptions(opts...))
}

func SupportedStructures(b Binding, opts ...Option) *RecordList {
	return NewRecordList(b, "supportedStructures", WithFieldOptions(opts...))
}

func Regulatory(b Binding, opts ...Option) *Object {
	return NewObject(b, "regulatory", opts...)
}

func PartOf(b Binding, opts ...Option) *Object {
	return NewObject(b, "partOf", opts...)
}
