//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/model"
)

// State represents the state that flows through the graph.
// Nodes receive a copy and return partial updates that the executor folds
// back in through the schema's reducers.
type State map[string]any

// Clone returns a copy of the state. Slices and maps of the common value
// types are copied so that a clone can be mutated without touching s.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = deepCopy(v)
	}
	return clone
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case State:
		return val.Clone()
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = deepCopy(item)
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []model.Message:
		out := make([]model.Message, len(val))
		for i, msg := range val {
			if len(msg.ToolCalls) > 0 {
				msg.ToolCalls = append([]model.ToolCall(nil), msg.ToolCalls...)
			}
			out[i] = msg
		}
		return out
	default:
		return v
	}
}

// StateReducer is a function that determines how state updates are merged.
// It takes existing and new values and returns the merged result.
// Reducers must not modify either argument.
type StateReducer func(existing, update any) any

// StateField defines a field in the state schema with its type and reducer.
type StateField struct {
	// Type is the Go type of the field. Persistent savers use it to restore
	// the value after decoding.
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema declares the fields of a graph's state and how each is merged.
type StateSchema struct {
	mu     sync.RWMutex
	Fields map[string]StateField
}

// NewStateSchema creates a new state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		Fields: make(map[string]StateField),
	}
}

// AddField adds a field to the state schema.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}
	s.Fields[name] = field
	return s
}

func (s *StateSchema) clone() *StateSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := make(map[string]StateField, len(s.Fields))
	for name, f := range s.Fields {
		fields[name] = f
	}
	return &StateSchema{Fields: fields}
}

// Field returns the declaration of name.
func (s *StateSchema) Field(name string) (StateField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.Fields[name]
	return f, ok
}

// ApplyUpdate applies a state update using the defined reducers and returns
// the merged state. currentState is not modified.
func (s *StateSchema) ApplyUpdate(currentState State, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := currentState.Clone()
	for key, updateValue := range update {
		field, exists := s.Fields[key]
		if !exists {
			// Undeclared keys are overwritten.
			result[key] = updateValue
			continue
		}
		currentValue, hasCurrentValue := result[key]
		if !hasCurrentValue && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result
}

// Validate validates a state against the schema.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, field := range s.Fields {
		value, exists := state[name]
		if field.Required && !exists {
			return fmt.Errorf("required field %s is missing", name)
		}
		if exists && value != nil && field.Type != nil {
			valueType := reflect.TypeOf(value)
			if !valueType.AssignableTo(field.Type) {
				return fmt.Errorf("field %s has wrong type: expected %v, got %v",
					name, field.Type, valueType)
			}
		}
	}
	return nil
}

// Coerce converts declared fields of state back to their declared types.
// A decoded JSON document yields generic values such as []any; Coerce
// re-decodes those into the field's Type. Fields that already have the right
// type or have no declared Type are left alone.
func (s *StateSchema) Coerce(state State) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(State, len(state))
	for key, value := range state {
		field, ok := s.Fields[key]
		if !ok || field.Type == nil || value == nil || reflect.TypeOf(value).AssignableTo(field.Type) {
			out[key] = value
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("coerce field %s: %w", key, err)
		}
		target := reflect.New(field.Type)
		if err := json.Unmarshal(raw, target.Interface()); err != nil {
			return nil, fmt.Errorf("coerce field %s to %v: %w", key, field.Type, err)
		}
		out[key] = target.Elem().Interface()
	}
	return out, nil
}

// Common reducer functions.

// DefaultReducer overwrites the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// AppendReducer appends update to existing slice.
func AppendReducer(existing, update any) any {
	if existing == nil {
		existing = []any{}
	}
	existingSlice, ok1 := existing.([]any)
	updateSlice, ok2 := update.([]any)
	if !ok1 || !ok2 {
		return update
	}
	out := make([]any, 0, len(existingSlice)+len(updateSlice))
	out = append(out, existingSlice...)
	return append(out, updateSlice...)
}

// StringSliceReducer appends string slices specifically.
func StringSliceReducer(existing, update any) any {
	if existing == nil {
		existing = []string{}
	}
	existingSlice, ok1 := existing.([]string)
	updateSlice, ok2 := update.([]string)
	if !ok1 || !ok2 {
		return update
	}
	out := make([]string, 0, len(existingSlice)+len(updateSlice))
	out = append(out, existingSlice...)
	return append(out, updateSlice...)
}

// MergeReducer merges update map into existing map.
func MergeReducer(existing, update any) any {
	if existing == nil {
		existing = make(map[string]any)
	}
	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)
	if !ok1 || !ok2 {
		return update
	}
	result := make(map[string]any, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}

// AppendDistinctReducer returns a reducer over []T that appends new items in
// arrival order and skips any item whose identity is already present.
// Items with an empty identity are always appended. The update may be a
// single T, a []T or a []any of items convertible to T.
//
// A value that cannot be read as a list of T is never allowed to replace the
// history: it is logged at error level and the existing items are kept.
func AppendDistinctReducer[T any](identity func(T) string) StateReducer {
	return func(existing, update any) any {
		current, ok := asSliceOf[T](existing)
		if !ok {
			log.Errorf("graph: append reducer: existing value %T is not a list of %T, update dropped",
				existing, *new(T))
			return existing
		}
		incoming, ok := asSliceOf[T](update)
		if !ok {
			log.Errorf("graph: append reducer: update %T is not a list of %T, update dropped",
				update, *new(T))
			return current
		}
		seen := make(map[string]struct{}, len(current)+len(incoming))
		for _, item := range current {
			if id := identity(item); id != "" {
				seen[id] = struct{}{}
			}
		}
		out := make([]T, 0, len(current)+len(incoming))
		out = append(out, current...)
		for _, item := range incoming {
			id := identity(item)
			if id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			out = append(out, item)
		}
		return out
	}
}

// asSliceOf reads v as a []T. Elements of a []any that are not already T are
// decoded through JSON, which covers state reloaded from a persistent saver.
func asSliceOf[T any](v any) ([]T, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []T:
		return s, true
	case T:
		return []T{s}, true
	case []any:
		out := make([]T, 0, len(s))
		for _, item := range s {
			if t, ok := item.(T); ok {
				out = append(out, t)
				continue
			}
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, false
			}
			var t T
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, false
			}
			out = append(out, t)
		}
		return out, true
	default:
		return nil, false
	}
}

// MessageReducer appends messages, skipping those whose ID is already in the
// history so that a re-executed node cannot duplicate its output.
var MessageReducer = AppendDistinctReducer(func(m model.Message) string { return m.ID })

// MessagesStateSchema creates a state schema optimized for message-based workflows.
func MessagesStateSchema() *StateSchema {
	schema := NewStateSchema()
	schema.AddField(StateKeyMessages, StateField{
		Type:    reflect.TypeOf([]model.Message{}),
		Reducer: MessageReducer,
		Default: func() any { return []model.Message{} },
	})
	schema.AddField(StateKeyUserInput, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyLastResponse, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyMetadata, StateField{
		Type:    reflect.TypeOf(map[string]any{}),
		Reducer: MergeReducer,
		Default: func() any { return make(map[string]any) },
	})
	return schema
}

// Messages returns the message history held in state.
func Messages(state State) []model.Message {
	msgs, _ := state[StateKeyMessages].([]model.Message)
	return msgs
}

// LastMessage returns the most recent message in state.
func LastMessage(state State) (model.Message, bool) {
	msgs := Messages(state)
	if len(msgs) == 0 {
		return model.Message{}, false
	}
	return msgs[len(msgs)-1], true
}
