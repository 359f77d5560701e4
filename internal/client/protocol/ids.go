package protocol

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// ID is an opaque identifier. The backend sends ids as strings, numbers or
// populated objects ({"_id": ...}); all of them decode to the same canonical string.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(b []byte) error {
	v, err := idFrom(gjson.ParseBytes(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseID canonicalises an id held in an already parsed JSON value. Values
// that are not ids yield "".
func ParseID(r gjson.Result) ID {
	id, err := idFrom(r)
	if err != nil {
		return ""
	}
	return id
}

func idFrom(r gjson.Result) (ID, error) {
	switch r.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return ID(strings.TrimSpace(r.Str)), nil
	case gjson.Number:
		// 7.0 and 7e0 are the id 7, as Canonical would render them.
		if strings.ContainsAny(r.Raw, ".eE") && r.Num == math.Trunc(r.Num) && math.Abs(r.Num) < 1<<53 {
			return ID(cast.ToString(r.Int())), nil
		}
		// Raw keeps integers wider than float64 intact.
		return ID(r.Raw), nil
	case gjson.JSON:
		if r.IsObject() {
			if v := r.Get("_id"); v.Exists() {
				return idFrom(v)
			}
			if v := r.Get("id"); v.Exists() {
				return idFrom(v)
			}
		}
	}
	return "", fmt.Errorf("invalid id %s", r.Raw)
}

// IDList accepts either an array of ids or a single scalar id.
type IDList []ID

func (l *IDList) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	if r.Type == gjson.Null {
		*l = nil
		return nil
	}
	if !r.IsArray() {
		id, err := idFrom(r)
		if err != nil {
			return err
		}
		*l = IDList{id}
		return nil
	}
	var out IDList
	var err error
	r.ForEach(func(_, v gjson.Result) bool {
		var id ID
		if id, err = idFrom(v); err != nil {
			return false
		}
		if id != "" {
			out = append(out, id)
		}
		return true
	})
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// Strings converts the list to plain strings.
func (l IDList) Strings() []string {
	out := make([]string, len(l))
	for i, id := range l {
		out[i] = string(id)
	}
	return out
}

// Time decodes RFC 3339 strings and epoch milliseconds. Missing values stay zero.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	switch r.Type {
	case gjson.Null:
		t.Time = time.Time{}
	case gjson.String:
		if r.Str == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, r.Str)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", r.Str, err)
		}
		t.Time = parsed
	case gjson.Number:
		t.Time = time.UnixMilli(r.Int())
	default:
		return fmt.Errorf("invalid timestamp %s", r.Raw)
	}
	return nil
}

// Canonical converts any identifier-like value to its canonical string form so
// that 42, "42" and ID("42") compare equal. Unconvertible values yield "".
func Canonical(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case ID:
		return strings.TrimSpace(string(id))
	case *ID:
		if id == nil {
			return ""
		}
		return strings.TrimSpace(string(*id))
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
