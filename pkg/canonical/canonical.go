// Package canonical produces a deterministic JSON encoding used to hash
// request payloads: object keys sorted, no insignificant whitespace, HTML
// characters left unescaped. Two payloads that differ only in key order or
// formatting encode to the same bytes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal encodes v canonically. v may be a struct, a map, raw JSON bytes
// (json.RawMessage) or anything else encoding/json accepts.
func Marshal(v any) ([]byte, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := encode(v)
		if err != nil {
			return nil, fmt.Errorf("canonical: marshal payload: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode payload: %w", err)
	}

	// encoding/json writes map keys in sorted order
	out, err := encode(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical: encode payload: %w", err)
	}
	return out, nil
}

// Hash returns the hex sha256 of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
