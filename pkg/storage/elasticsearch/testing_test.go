package elasticsearch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/traceboard/pkg/models"
)

var (
	weekStart = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	weekEnd   = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
)

func scope() models.Scope {
	return models.Scope{TenantID: "tenant-1", StartDate: weekStart, EndDate: weekEnd}
}

// fakeSearcher answers every search with a canned response and keeps the
// decoded request bodies
type fakeSearcher struct {
	response string
	err      error
	index    string
	bodies   []map[string]any
}

func (f *fakeSearcher) Search(_ context.Context, index string, body []byte) (map[string]any, error) {
	f.index = index
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	f.bodies = append(f.bodies, decoded)
	if f.err != nil {
		return nil, f.err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(f.response), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeSearcher) Ping(context.Context) error { return f.err }

type fakeLabels struct {
	labels map[string]string
	err    error
	calls  int
}

func (f *fakeLabels) Labels(context.Context, string, string) (map[string]string, error) {
	f.calls++
	return f.labels, f.err
}

// render marshals v and decodes it back into generic JSON values.
func render(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// dig follows keys through nested JSON objects.
func dig(t *testing.T, node any, keys ...string) any {
	t.Helper()
	for _, k := range keys {
		m, ok := node.(map[string]any)
		require.True(t, ok, "not an object at %q", k)
		node, ok = m[k]
		require.True(t, ok, "missing key %q", k)
	}
	return node
}
