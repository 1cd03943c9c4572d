package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type staticLabels struct {
	labels map[string]string
	err    error
}

func (s staticLabels) Labels(context.Context, string, string) (map[string]string, error) {
	return s.labels, s.err
}

func TestResolveLabels(t *testing.T) {
	tests := []struct {
		name     string
		resolver LabelResolver
		kind     string
		want     map[string]string
	}{
		{"no resolver", nil, "topics", nil},
		{"no kind", staticLabels{labels: map[string]string{"t1": "Billing"}}, "", nil},
		{
			"distinct labels kept",
			staticLabels{labels: map[string]string{"t1": "Billing", "t2": "Refunds"}},
			"topics",
			map[string]string{"t1": "Billing", "t2": "Refunds"},
		},
		{
			"shared label suffixed with the id",
			staticLabels{labels: map[string]string{"id1": "Billing", "id2": "Billing", "id3": "Refunds"}},
			"topics",
			map[string]string{"id1": "Billing (id1)", "id2": "Billing (id2)", "id3": "Refunds"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ResolveLabels(context.Background(), tt.resolver, "tenant-1", tt.kind))
		})
	}
}

func TestResolveLabelsLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	labels := ResolveLabels(ctx, staticLabels{err: errors.New("store closed")}, "tenant-1", "topics")
	require.Nil(t, labels)
	require.Contains(t, buf.String(), "label lookup failed")
}
