/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"sync"
	"testing"

	"github.com/ssgreg/logf"
	"github.com/stretchr/testify/require"
)

func TestMasker_Mask(t *testing.T) {
	masker := NewMasker(DefaultMasks)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "signature in JSON body",
			in:   `{"document":{"docId":"DOC-123"},"signature":"c29tZURpZ2l0YWxTaWduYXR1cmU="}`,
			want: `{"document":{"docId":"DOC-123"},"signature":"***"}`,
		},
		{
			name: "signature with escaped quotes and spaces",
			in:   `{"Signature" : "a\"b"}`,
			want: `{"signature":"***"}`,
		},
		{
			name: "authorization header",
			in:   "POST /api/v3/lk/documents/create HTTP/1.1\r\nAuthorization: Bearer abc\r\n",
			want: "POST /api/v3/lk/documents/create HTTP/1.1\r\nAuthorization: ***\r\n",
		},
		{
			name: "nothing to mask",
			in:   `{"docId":"DOC-123"}`,
			want: `{"docId":"DOC-123"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, masker.Mask(tt.in))
		})
	}
}

type capturingEntryWriter struct {
	mu      sync.Mutex
	entries []logf.Entry
}

//nolint:gocritic
func (w *capturingEntryWriter) WriteEntry(e logf.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
}

func TestMaskingLogger(t *testing.T) {
	ew := &capturingEntryWriter{}
	logger := NewMaskingLogger(&LogfAdapter{logf.NewLogger(logf.LevelDebug, ew)}, NewMasker(DefaultMasks))

	body := `{"signature":"secret"}`
	logger.Error("request failed "+body,
		String("body", body),
		Bytes("raw", []byte(body)),
		Error(errors.New("bad payload "+body)),
		Int("status", 400),
	)

	require.Len(t, ew.entries, 1)
	entry := ew.entries[0]
	require.Equal(t, `request failed {"signature":"***"}`, entry.Text)
	require.Equal(t, `{"signature":"***"}`, string(entry.Fields[0].Bytes))
	require.Equal(t, `{"signature":"***"}`, string(entry.Fields[1].Bytes))
	require.EqualError(t, entry.Fields[2].Any.(error), `bad payload {"signature":"***"}`)
	require.Equal(t, int64(400), entry.Fields[3].Int)

	fields := []Field{Int("status", 200)}
	require.Equal(t, fields, logger.(MaskingLogger).maskFields(fields))
}
