package editors

import (
	"errors"
	"fmt"

	"modelcards/api/internal/catalog"
)

var (
	ErrUnknownOp   = errors.New("unknown field operation")
	ErrOutOfRange  = errors.New("item index out of range")
	ErrInvalidItem = errors.New("invalid item")
)

const (
	OpSet     = "set"
	OpAppend  = "append"
	OpRemove  = "remove"
	OpSetAttr = "set_attr"
)

// Op is one field edit as received from a client. Set writes Value at
// Path; the list operations go through the matching editor so they keep
// its trimming, de-duplication and whole-value replacement.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
	Index int    `json:"index"`
	Attr  string `json:"attr"`
}

func Apply(b Binding, op Op) error {
	if op.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidItem)
	}
	switch op.Op {
	case "", OpSet:
		b.UpdateField(op.Path, op.Value)
		return nil
	case OpAppend:
		switch item := op.Value.(type) {
		case string:
			if !NewStringList(b, op.Path).Add(item) {
				return fmt.Errorf("%w: empty or duplicate entry", ErrInvalidItem)
			}
			return nil
		case map[string]any:
			recordList(b, op.Path).Add(item)
			return nil
		default:
			return fmt.Errorf("%w: append expects a string or an object", ErrInvalidItem)
		}
	case OpRemove:
		var ok bool
		if holdsStrings(b, op.Path) {
			ok = NewStringList(b, op.Path).Remove(op.Index)
		} else {
			ok = recordList(b, op.Path).Remove(op.Index)
		}
		if !ok {
			return ErrOutOfRange
		}
		return nil
	case OpSetAttr:
		if op.Attr == "" {
			return fmt.Errorf("%w: attr is required", ErrInvalidItem)
		}
		if value, ok := b.Value(op.Path); ok {
			if _, isObj := value.(map[string]any); isObj {
				NewObject(b, op.Path).Set(op.Attr, op.Value)
				return nil
			}
		}
		list := recordList(b, op.Path)
		if !list.SetAttr(op.Index, op.Attr, op.Value) {
			if op.Index >= 0 && op.Index < list.Len() {
				return fmt.Errorf("%w: item %d is not an object", ErrInvalidItem, op.Index)
			}
			return ErrOutOfRange
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
	}
}

func recordList(b Binding, path string) *RecordList {
	if path == "evidence" {
		return NewRecordList(b, path, WithItemNormalizer(catalog.NormalizeEvidenceValue))
	}
	return NewRecordList(b, path)
}

func holdsStrings(b Binding, path string) bool {
	if path == "evidence" {
		return false
	}
	value, ok := b.Value(path)
	if !ok {
		return false
	}
	switch v := value.(type) {
	case []string:
		return true
	case []any:
		for _, item := range v {
			if _, isString := item.(string); !isString {
				return false
			}
		}
		return len(v) > 0
	}
	return false
}
