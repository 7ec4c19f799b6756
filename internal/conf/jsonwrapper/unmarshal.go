// Package jsonwrapper contains a JSON unmarshaler.
package jsonwrapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// differences with respect to the standard package:
// - prevents setting unknown fields
// - prevents setting top-level slices to nil

// Unmarshal decodes JSON.
func Unmarshal(buf []byte, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Slice &&
		bytes.Equal(bytes.TrimSpace(buf), []byte("null")) {
		return fmt.Errorf("cannot set slice to nil")
	}

	d := json.NewDecoder(bytes.NewReader(buf))
	d.DisallowUnknownFields()
	return d.Decode(dest)
}

// Decode decodes JSON.
func Decode(r io.Reader, dest any) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	return Unmarshal(buf, dest)
}
