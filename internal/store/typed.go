package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// FieldsOf converts a JSON-tagged struct into record fields. The id and
// version attributes are carried on the Record itself and are removed.
func FieldsOf(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	rec := Record{Fields: f}
	if id, ok := f["id"].(string); ok {
		rec.ID = id
	}
	if ver, ok := f["version"].(float64); ok {
		rec.Version = int64(ver)
	}
	delete(f, "id")
	delete(f, "version")
	return rec, nil
}

// Decode fills a JSON-tagged struct from rec, including id and version.
func Decode[T any](rec Record) (T, error) {
	var out T
	in := Merge(rec.Fields, Fields{"id": rec.ID, "version": rec.Version})
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(in)); err != nil {
		return out, fmt.Errorf("decode %s: %w", rec.ID, err)
	}
	return out, nil
}

func FilterAs[T any](ctx context.Context, r Reader, c Collection, crit Criteria) ([]T, error) {
	recs, err := r.Filter(ctx, c, crit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func GetAs[T any](ctx context.Context, r Reader, c Collection, id string) (T, error) {
	rec, err := r.Get(ctx, c, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](rec)
}

// Put creates v in collection c and returns the stored form.
func Put[T any](ctx context.Context, s Store, c Collection, v T) (T, error) {
	rec, err := FieldsOf(v)
	if err != nil {
		var zero T
		return zero, err
	}
	created, err := s.Create(ctx, c, rec)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](created)
}
