package balancemap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// listEntry is the list input format: [{address, earnings, reasons}].
type listEntry struct {
	Address  string `json:"address"`
	Earnings string `json:"earnings"`
	Reasons  string `json:"reasons"`
}

// ParseInput decodes builder input. Two formats are accepted: an object mapping
// account to a raw integer entitlement (JSON number or decimal/hex string), or
// a list of {address, earnings, reasons} records.
func ParseInput(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	switch trimmed[0] {
	case '{':
		return parseAmountMap(trimmed)
	case '[':
		return parseEntryList(trimmed)
	default:
		return nil, fmt.Errorf("invalid input: expected a JSON object or array")
	}
}

func parseAmountMap(data []byte) ([]Entry, error) {
	raw := make(map[string]json.RawMessage)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode balance map: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		account, err := parseAccount(key)
		if err != nil {
			return nil, err
		}

		var value interface{}
		vdec := json.NewDecoder(bytes.NewReader(raw[key]))
		vdec.UseNumber()
		if err := vdec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid amount for account %s: %w", key, err)
		}

		var text string
		switch v := value.(type) {
		case json.Number:
			text = v.String()
		case string:
			text = v
		default:
			return nil, fmt.Errorf("invalid amount for account %s: unsupported type %T", key, value)
		}

		amount, err := ParseAmount(text)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for account %s: %w", key, err)
		}
		entries = append(entries, Entry{Account: account, Amount: amount})
	}
	return entries, nil
}

func parseEntryList(data []byte) ([]Entry, error) {
	var list []listEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode balance list: %w", err)
	}

	entries := make([]Entry, 0, len(list))
	for i, item := range list {
		account, err := parseAccount(item.Address)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		amount, err := ParseAmount(item.Earnings)
		if err != nil {
			return nil, fmt.Errorf("entry %d: invalid earnings: %w", i, err)
		}
		entries = append(entries, Entry{Account: account, Amount: amount, Reasons: item.Reasons})
	}
	return entries, nil
}

func parseAccount(s string) (common.Address, error) {
	account, err := util.ParseAddress(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: found invalid address: %s: %v", ErrInvalidAddress, s, err)
	}
	return account, nil
}
