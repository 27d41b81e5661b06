package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionalBool(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		want      *bool
		wantError bool
	}{
		{name: "nil means absent", value: nil, want: nil},
		{name: "bool true", value: true, want: boolPtr(true)},
		{name: "bool false", value: false, want: boolPtr(false)},
		{name: "string true", value: "true", want: boolPtr(true)},
		{name: "string yes", value: "yes", want: boolPtr(true)},
		{name: "string Y with spaces", value: "  Y ", want: boolPtr(true)},
		{name: "string 0", value: "0", want: boolPtr(false)},
		{name: "string NO uppercase", value: "NO", want: boolPtr(false)},
		{name: "number one", value: float64(1), want: boolPtr(true)},
		{name: "number zero", value: float64(0), want: boolPtr(false)},
		{name: "number two", value: float64(2), wantError: true},
		{name: "unknown string", value: "maybe", wantError: true},
		{name: "empty string", value: "", wantError: true},
		{name: "object", value: map[string]any{}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptionalBool("flag", tt.value)
			if tt.wantError {
				require.Error(t, err)
				assert.Equal(t, KindValidation, kindOf(t, err))
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func boolPtr(v bool) *bool {
	return &v
}
