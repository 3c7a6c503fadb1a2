package utils

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// NormalizePtrDTO trims *string fields and rounds *decimal.Decimal fields on a pointer-to-struct DTO.
// Only non-nil pointer fields are touched; nils stay nil so they are not patched.
func NormalizePtrDTO(dto any) {
	s, ok := structElem(dto)
	if !ok {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() {
			continue
		}
		normalizeValue(f.Elem())
	}
}

// NormalizeDTO trims string fields and rounds decimal fields on a pointer-to-struct DTO.
// Pointer fields are followed; slices of structs are normalized element by element.
func NormalizeDTO(dto any) {
	s, ok := structElem(dto)
	if !ok {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		switch f.Kind() {
		case reflect.Ptr:
			if !f.IsNil() {
				normalizeValue(f.Elem())
			}
		case reflect.Slice:
			for j := 0; j < f.Len(); j++ {
				if el := f.Index(j); el.Kind() == reflect.Struct && el.CanAddr() {
					NormalizeDTO(el.Addr().Interface())
				}
			}
		default:
			normalizeValue(f)
		}
	}
}

func normalizeValue(v reflect.Value) {
	if !v.CanSet() {
		return
	}
	switch {
	case v.Kind() == reflect.String:
		v.SetString(strings.TrimSpace(v.String()))
	case v.Type() == decimalType:
		d := v.Interface().(decimal.Decimal)
		v.Set(reflect.ValueOf(RoundMoney(d)))
	}
}

func structElem(dto any) (reflect.Value, bool) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, false
	}
	s := v.Elem()
	return s, s.Kind() == reflect.Struct
}
