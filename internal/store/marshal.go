package store

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sfcpath/internal/model"
)

// key normalizes a record name to NFC.
func key(name string) string {
	return norm.NFC.String(name)
}

// marshalRecord converts v to canonical JSON TEXT and its etag.
func marshalRecord(kind string, v any) (body, etag string, err error) {
	data, err := model.MarshalCanonical(v)
	if err != nil {
		return "", "", fmt.Errorf("marshal %s: %w", kind, err)
	}
	return string(data), model.ETag(kind, data), nil
}

// unmarshalRecord parses a stored body into dst.
func unmarshalRecord(kind, body string, dst any) error {
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}

// normalizeForwarder re-owns every dictionary entry so the stored record
// always satisfies entry.Forwarder == forwarder.Name.
func normalizeForwarder(f model.Forwarder) model.Forwarder {
	f.Name = key(f.Name)
	if len(f.Dictionary) == 0 {
		f.Dictionary = nil
		return f
	}
	dict := make(map[string]model.DictionaryEntry, len(f.Dictionary))
	for _, e := range f.Dictionary {
		e.Forwarder = f.Name
		dict[e.Name] = e
	}
	f.Dictionary = dict
	return f
}
