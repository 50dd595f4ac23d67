// Package sorting holds the data model shared by the task functions, the
// preload gate and the units table: identity tokens for recordings and
// sortings, spike trains, curation and unit selection.
package sorting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Object is an opaque identity token for a recording or sorting. It is kept
// as canonical JSON (sorted object keys, no insignificant whitespace) so two
// tokens are structurally equal exactly when their strings are equal.
type Object string

// NewObject canonicalizes v into an Object.
func NewObject(v any) (Object, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return ParseObject(raw)
}

// ParseObject canonicalizes a JSON document into an Object.
func ParseObject(raw []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("parse object: %w", err)
	}
	if v == nil {
		return "", errors.New("parse object: null is not an identity token")
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize object: %w", err)
	}
	return Object(canon), nil
}

// IsZero reports whether the token is unset.
func (o Object) IsZero() bool { return o == "" }

// MarshalJSON emits the canonical document, or null for an unset token.
func (o Object) MarshalJSON() ([]byte, error) {
	if o == "" {
		return []byte("null"), nil
	}
	return []byte(o), nil
}

// UnmarshalJSON canonicalizes the incoming document.
func (o *Object) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*o = ""
		return nil
	}
	obj, err := ParseObject(b)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}

// IdentityPair keys the background precompute for one (recording, sorting)
// combination. It is comparable with ==.
type IdentityPair struct {
	Recording Object `json:"recording_object"`
	Sorting   Object `json:"sorting_object"`
}

// Equal reports structural equality of both tokens.
func (p IdentityPair) Equal(q IdentityPair) bool {
	return p.Recording == q.Recording && p.Sorting == q.Sorting
}

const storageFormat = "db"

type recordingRef struct {
	Format string `json:"recording_format"`
	Data   struct {
		RecordingID string `json:"recording_id"`
	} `json:"data"`
}

type sortingRef struct {
	Format string `json:"sorting_format"`
	Data   struct {
		SortingID string `json:"sorting_id"`
	} `json:"data"`
}

// RecordingObject returns the token for a stored recording.
func RecordingObject(id string) Object {
	var ref recordingRef
	ref.Format = storageFormat
	ref.Data.RecordingID = id
	o, err := NewObject(ref)
	if err != nil {
		// a struct of strings always marshals
		panic(err)
	}
	return o
}

// SortingObject returns the token for a stored sorting.
func SortingObject(id string) Object {
	var ref sortingRef
	ref.Format = storageFormat
	ref.Data.SortingID = id
	o, err := NewObject(ref)
	if err != nil {
		panic(err)
	}
	return o
}

// RecordingIDFromObject resolves a token produced by RecordingObject.
func RecordingIDFromObject(o Object) (string, error) {
	var ref recordingRef
	if err := json.Unmarshal([]byte(o), &ref); err != nil {
		return "", fmt.Errorf("decode recording object: %w", err)
	}
	if ref.Format != storageFormat || ref.Data.RecordingID == "" {
		return "", fmt.Errorf("unsupported recording object %s", o)
	}
	return ref.Data.RecordingID, nil
}

// SortingIDFromObject resolves a token produced by SortingObject.
func SortingIDFromObject(o Object) (string, error) {
	var ref sortingRef
	if err := json.Unmarshal([]byte(o), &ref); err != nil {
		return "", fmt.Errorf("decode sorting object: %w", err)
	}
	if ref.Format != storageFormat || ref.Data.SortingID == "" {
		return "", fmt.Errorf("unsupported sorting object %s", o)
	}
	return ref.Data.SortingID, nil
}
