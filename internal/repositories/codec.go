package repositories

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/store"
)

// getJSON loads key into v. It reports false when the key is absent.
func getJSON(ctx context.Context, kv store.KeyedStore, key string, v any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func putJSON(ctx context.Context, kv store.KeyedStore, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return kv.Put(ctx, key, raw)
}

// listJSON decodes every value under prefix through decode. Undecodable
// entries are logged and skipped so one bad record cannot hide a group.
func listJSON(ctx context.Context, kv store.KeyedStore, prefix string, decode func(key string, raw []byte) error) error {
	keys, err := kv.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		raw, err := kv.Get(ctx, key)
		if err != nil {
			return err
		}
		if raw == nil {
			// deleted between Keys and Get
			continue
		}
		if err := decode(key, raw); err != nil {
			jww.WARN.Printf("skipping undecodable record key=%s: %v", key, err)
		}
	}
	return nil
}
