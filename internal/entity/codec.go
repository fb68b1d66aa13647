package entity

import (
	"encoding/json"
	"fmt"
)

// Decode maps a stored record to its variant, defaulting optional fields.
func Decode(raw []byte) (Obj, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}

	var obj Obj
	switch head.Type {
	case KindRoot:
		obj = &Root{Base: defaults()}
	case KindStar:
		obj = &Star{Base: defaults()}
	case KindPlanet:
		obj = &Planet{Base: defaults()}
	default:
		return nil, &KindError{Kind: head.Type}
	}
	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	if r, ok := obj.(*Root); ok {
		r.Orbit = nil
	}
	return obj, nil
}

func defaults() Base {
	return Base{Albedo: DefaultAlbedo}
}

// Encode renders obj with its type tag.
func Encode(obj Obj) (json.RawMessage, error) {
	var v any
	switch o := obj.(type) {
	case *Root:
		v = struct {
			Type Kind `json:"type"`
			*Root
		}{KindRoot, o}
	case *Star:
		v = struct {
			Type Kind `json:"type"`
			*Star
		}{KindStar, o}
	case *Planet:
		v = struct {
			Type Kind `json:"type"`
			*Planet
		}{KindPlanet, o}
	default:
		return nil, fmt.Errorf("encode entity: unsupported type %T", obj)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", obj.Kind(), err)
	}
	return data, nil
}
