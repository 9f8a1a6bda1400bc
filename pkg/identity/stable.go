// Package identity maps user identifiers issued by the user service onto the
// UUID keys the ticketing service expects.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/google/uuid"
)

// Namespace scopes every stable UUID. It must be identical in every build and
// deployment that talks to the ticketing service.
var Namespace = uuid.MustParse("1b671a64-40d5-491e-99b0-da01ff1f3341")

// ErrInvalidInput is returned when there is no identity to map.
var ErrInvalidInput = errors.New("invalid input: empty or unsupported raw identifier")

// StableUUID derives a version 5 UUID from the canonical string form of raw.
// The same raw value always yields the same UUID.
func StableUUID(raw any) (uuid.UUID, error) {
	s, err := canonical(raw)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(Namespace, []byte(s)), nil
}

// StableUUIDString is StableUUID formatted as a lowercase hyphenated string.
func StableUUIDString(raw any) (string, error) {
	id, err := StableUUID(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func canonical(raw any) (string, error) {
	if raw == nil {
		return "", ErrInvalidInput
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return "", fmt.Errorf("%w: nil %T", ErrInvalidInput, raw)
		}
	}

	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case fmt.Stringer:
		s = v.String()
	default:
		for rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return "", fmt.Errorf("%w: nil %T", ErrInvalidInput, raw)
			}
			rv = rv.Elem()
		}
		var err error
		if s, err = canonicalKind(rv); err != nil {
			return "", fmt.Errorf("%w: %T", err, raw)
		}
	}

	if s == "" {
		return "", ErrInvalidInput
	}
	return s, nil
}

// canonicalKind formats strings and numbers by kind, so named types such as
// type UserID int64 map like their underlying type.
func canonicalKind(rv reflect.Value) (string, error) {
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", ErrInvalidInput
		}
		return strconv.FormatFloat(f, 'f', -1, rv.Type().Bits()), nil
	default:
		return "", ErrInvalidInput
	}
}
