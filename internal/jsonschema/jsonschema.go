//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package jsonschema derives tool argument schemas from Go types.
package jsonschema

import (
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// Generate builds an object schema for t. Struct fields without a pointer
// type or `omitempty` are reported as required.
func Generate(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "object"}
	}
	switch t.Kind() {
	case reflect.Struct:
		schema := &tool.Schema{Type: "object", Properties: map[string]*tool.Schema{}}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name, omitEmpty, ok := fieldName(field)
			if !ok {
				continue
			}
			prop := fieldSchema(field.Type)
			if desc := field.Tag.Get("description"); desc != "" {
				prop.Description = desc
			}
			schema.Properties[name] = prop
			if field.Type.Kind() != reflect.Ptr && !omitEmpty {
				schema.Required = append(schema.Required, name)
			}
		}
		return schema
	case reflect.Ptr:
		return Generate(t.Elem())
	default:
		return fieldSchema(t)
	}
}

func fieldSchema(t reflect.Type) *tool.Schema {
	switch t.Kind() {
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{Type: "array", Items: fieldSchema(t.Elem())}
	case reflect.Map:
		return &tool.Schema{Type: "object", AdditionalProperties: fieldSchema(t.Elem())}
	case reflect.Ptr:
		return fieldSchema(t.Elem())
	case reflect.Struct:
		nested := &tool.Schema{Type: "object", Properties: map[string]*tool.Schema{}}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name, _, ok := fieldName(field)
			if !ok {
				continue
			}
			nested.Properties[name] = fieldSchema(field.Type)
		}
		return nested
	default:
		return &tool.Schema{Type: "object"}
	}
}

// fieldName resolves the JSON name of a struct field.
func fieldName(field reflect.StructField) (name string, omitEmpty bool, ok bool) {
	if !field.IsExported() {
		return "", false, false
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name = field.Name
	if tag == "" {
		return name, false, true
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, true
}
