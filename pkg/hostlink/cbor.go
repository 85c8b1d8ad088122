// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ParseCBORMessage parses a CBOR message: [msg_type, payload_map].
// Returns the message type and decoded payload map (nil for empty payloads).
func ParseCBORMessage(data []byte) (msgType uint8, payload map[int]any, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty CBOR payload", ErrMalformed)
	}

	var msg []any
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("%w: expected 2-element array, got %d elements", ErrMalformed, len(msg))
	}

	v, ok := msg[0].(uint64)
	if !ok {
		return 0, nil, fmt.Errorf("%w: expected uint for message type, got %T", ErrMalformed, msg[0])
	}
	if v > 255 {
		return 0, nil, fmt.Errorf("%w: message type out of range: %d", ErrMalformed, v)
	}
	msgType = uint8(v)

	if msg[1] == nil {
		return msgType, nil, nil
	}

	m, ok := msg[1].(map[any]any)
	if !ok {
		return 0, nil, fmt.Errorf("%w: expected map or nil for payload, got %T", ErrMalformed, msg[1])
	}
	payload = make(map[int]any, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("%w: expected integer map key, got %T", ErrMalformed, key)
		}
	}
	return msgType, payload, nil
}

func encodeCBORPayload(msgType uint8, payloadMap map[int]any) ([]byte, error) {
	var msg any
	if len(payloadMap) == 0 {
		msg = []any{uint64(msgType), nil}
	} else {
		msg = []any{uint64(msgType), payloadMap}
	}
	return cbor.Marshal(msg)
}

// Map value extraction helpers

// GetMapUint extracts a uint64 from a payload map by key.
func GetMapUint(m map[int]any, key int) (uint64, bool) {
	switch val := m[key].(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	case float64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// GetMapInt extracts an int64 from a payload map by key.
func GetMapInt(m map[int]any, key int) (int64, bool) {
	switch val := m[key].(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}

// GetMapFloat extracts a float64 from a payload map by key.
func GetMapFloat(m map[int]any, key int) (float64, bool) {
	switch val := m[key].(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	}
	return 0, false
}

// GetMapBool extracts a bool from a payload map by key.
func GetMapBool(m map[int]any, key int) (bool, bool) {
	val, ok := m[key].(bool)
	return val, ok
}

// GetMapBytes extracts a byte string from a payload map by key.
func GetMapBytes(m map[int]any, key int) ([]byte, bool) {
	val, ok := m[key].([]byte)
	return val, ok
}

// GetMapArray extracts an array from a payload map by key.
func GetMapArray(m map[int]any, key int) ([]any, bool) {
	val, ok := m[key].([]any)
	return val, ok
}
