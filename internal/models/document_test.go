package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/models"
)

func TestDocumentValue(t *testing.T) {
	var empty models.Document
	v, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	v, err = models.Document{"b": 1, "a": "x"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":1}`, string(v.([]byte)))
}

func TestDocumentScan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    models.Document
		wantErr bool
	}{
		{name: "null", src: nil, want: models.Document{}},
		{name: "bytes", src: []byte(`{"label":"Email"}`), want: models.Document{"label": "Email"}},
		{name: "string", src: `{"n":2}`, want: models.Document{"n": json.Number("2")}},
		{name: "large integer", src: []byte(`{"max":9007199254740993}`),
			want: models.Document{"max": json.Number("9007199254740993")}},
		{name: "empty", src: []byte{}, want: models.Document{}},
		{name: "json null", src: []byte(`null`), want: models.Document{}},
		{name: "array", src: []byte(`[1]`), wantErr: true},
		{name: "unsupported type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d models.Document
			err := d.Scan(tt.src)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDocumentRoundTripKeepsLargeIntegers(t *testing.T) {
	var d models.Document
	require.NoError(t, d.Scan([]byte(`{"schema":{"max":9007199254740993,"ratio":0.25}}`)))

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"schema":{"max":9007199254740993,"ratio":0.25}}`, string(v.([]byte)))
}
