package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"

	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// KV addresses a KV version 2 secrets engine through the logical API.
type KV struct {
	client *Client
	mount  string
}

// KV returns a handle on the KV v2 engine mounted at mount.
func (c *Client) KV(mount string) *KV {
	if mount == "" {
		mount = DefaultKVMount
	}
	return &KV{client: c, mount: strings.Trim(mount, "/")}
}

// DataPath returns the API path of the record's current version.
func (kv *KV) DataPath(path string) string {
	return fmt.Sprintf("%s/data/%s", kv.mount, strings.Trim(path, "/"))
}

// MetadataPath returns the API path of the record's metadata.
func (kv *KV) MetadataPath(path string) string {
	return fmt.Sprintf("%s/metadata/%s", kv.mount, strings.Trim(path, "/"))
}

// Write stores fields as a new version of the record, replacing the previous
// field set.
func (kv *KV) Write(ctx context.Context, path string, fields map[string]string) error {
	data := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		data[k] = v
	}

	p := kv.DataPath(path)
	if _, err := kv.client.Logical().WriteWithContext(ctx, p, map[string]interface{}{
		"data": data,
	}); err != nil {
		return classify("write secret", p, err)
	}
	return nil
}

// Read returns the current version of the record. found is false when the
// record does not exist or its latest version was deleted.
func (kv *KV) Read(ctx context.Context, path string) (fields map[string]string, found bool, err error) {
	p := kv.DataPath(path)
	secret, err := kv.client.Logical().ReadWithContext(ctx, p)
	if err != nil {
		return nil, false, classify("read secret", p, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, false, nil
	}

	raw, ok := secret.Data["data"].(map[string]interface{})
	if !ok || raw == nil {
		return nil, false, nil
	}

	fields = make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, true, infraerrors.NewValidationError(k, fmt.Sprintf("%T", v),
				fmt.Sprintf("field of secret %q is not a string", path))
		}
		fields[k] = s
	}
	return fields, true, nil
}

// Delete removes the record's metadata together with every version.
func (kv *KV) Delete(ctx context.Context, path string) error {
	p := kv.MetadataPath(path)
	if _, err := kv.client.Logical().DeleteWithContext(ctx, p); err != nil {
		return classify("delete secret", p, err)
	}
	return nil
}

// List returns the sorted key names directly under prefix. A missing prefix
// yields an empty list.
func (kv *KV) List(ctx context.Context, prefix string) ([]string, error) {
	p := kv.MetadataPath(prefix)
	secret, err := kv.client.Logical().ListWithContext(ctx, p)
	if err != nil {
		if IsStatus(err, 404) {
			return []string{}, nil
		}
		return nil, classify("list secrets", p, err)
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
