package persistence

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// MarshalMeta serializes RegistryMeta to JSON bytes.
func MarshalMeta(m *RegistryMeta) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot marshal nil RegistryMeta")
	}

	return json.Marshal(m)
}

// UnmarshalMeta deserializes RegistryMeta from JSON bytes.
func UnmarshalMeta(data []byte) (*RegistryMeta, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var m RegistryMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RegistryMeta: %w", err)
	}

	return &m, nil
}

// MarshalEvent serializes an Event to JSON bytes.
func MarshalEvent(e *Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil Event")
	}

	return json.Marshal(e)
}

// UnmarshalEvent deserializes an Event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Event: %w", err)
	}

	return &e, nil
}

// MarshalAmount encodes an amount as 32 big-endian bytes.
func MarshalAmount(amount *uint256.Int) []byte {
	b := amount.Bytes32()
	return b[:]
}

// UnmarshalAmount decodes an amount written by MarshalAmount.
func UnmarshalAmount(data []byte) (*uint256.Int, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid amount encoding length %d", len(data))
	}
	return new(uint256.Int).SetBytes32(data), nil
}

// EventKey encodes a sequence number so that lexical order equals numeric order.
func EventKey(prefix string, seq uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}
