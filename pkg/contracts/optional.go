package contracts

import (
	"bytes"
	"encoding/json"
)

// Optional carries a value that may be absent. The zero Optional is absent.
//
// Timestamps, derived ratios and order values use Optional rather than zero or
// sentinel values so that "not happened yet" and "undefined" stay distinct from
// a real zero.
type Optional[T any] struct {
	value T
	valid bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, valid: true}
}

// None returns an absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.valid
}

// Valid reports whether a value is present.
func (o Optional[T]) Valid() bool {
	return o.valid
}

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if !o.valid {
		return def
	}
	return o.value
}

// MarshalJSON encodes absent values as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absent.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// IsZero lets encoders treat an absent value as empty.
func (o Optional[T]) IsZero() bool {
	return !o.valid
}

// UnmarshalYAML decodes snapshot files; a missing or null node stays absent.
func (o *Optional[T]) UnmarshalYAML(unmarshal func(any) error) error {
	var ptr *T
	if err := unmarshal(&ptr); err != nil {
		return err
	}
	if ptr == nil {
		*o = Optional[T]{}
		return nil
	}
	*o = Some(*ptr)
	return nil
}
