package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "created", KindCreated.String())
	assert.Equal(t, "modified|deleted", (KindModified | KindDeleted).String())
	assert.Equal(t, "created|modified|deleted|overflow", AllKinds.String())
	assert.Equal(t, "none", Kind(0).String())
}

func TestKindHas(t *testing.T) {
	k := KindCreated | KindDeleted
	assert.True(t, k.Has(KindCreated))
	assert.True(t, k.Has(KindCreated|KindDeleted))
	assert.False(t, k.Has(KindModified))
	assert.False(t, k.Has(0))
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", AllKinds, false},
		{"all", AllKinds, false},
		{"created", KindCreated, false},
		{"created,modified", KindCreated | KindModified, false},
		{" Deleted | overflow ", KindDeleted | KindOverflow, false},
		{"renamed", 0, true},
		{",", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKinds(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKinds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
