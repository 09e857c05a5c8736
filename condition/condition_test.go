package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/globalcalls/errors"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "anat,stage", want: "anat,stage"},
		{in: "stage, anat", want: "anat,stage"},
		{in: "anat", want: "anat"},
		{in: "strain,sex,anat,stage", want: "anat,stage,sex,strain"},
		{in: "", wantErr: true},
		{in: " , ", wantErr: true},
		{in: "anat,tissue", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParseParams(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidRequestError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestParams(t *testing.T) {
	p := MustParams(DevStage, AnatEntity)
	assert.True(t, p.Has(AnatEntity))
	assert.True(t, p.Has(DevStage))
	assert.False(t, p.Has(Sex))
	assert.Equal(t, []Axis{AnatEntity, DevStage}, p.Axes())
}

func TestProject(t *testing.T) {
	raw := New(9606, "UBERON:0000955", "HsapDv:0000087").With(Sex, "female")

	anatOnly := raw.Project(MustParams(AnatEntity))
	assert.Equal(t, "UBERON:0000955", anatOnly.Value(AnatEntity))
	assert.Empty(t, anatOnly.Value(DevStage))
	assert.Empty(t, anatOnly.Value(Sex))
	assert.Equal(t, int64(9606), anatOnly.SpeciesID)

	// Projection onto every set axis is the identity
	assert.Equal(t, raw, raw.Project(MustParams(AnatEntity, DevStage, Sex, Strain)))

	// Raw conditions differing only on a dropped axis collapse together
	male := raw.With(Sex, "male")
	assert.NotEqual(t, raw, male)
	assert.Equal(t, raw.Project(MustParams(AnatEntity, DevStage)), male.Project(MustParams(AnatEntity, DevStage)))
}

func TestKeyAndString(t *testing.T) {
	c := New(1, "A", "S")
	assert.Equal(t, "A|S||", c.Key())
	assert.Equal(t, "{anat=A stage=S}", c.String())

	conds := []Condition{New(1, "B", "S"), New(1, "A", "T"), New(1, "A", "S")}
	Sort(conds)
	assert.Equal(t, []Condition{New(1, "A", "S"), New(1, "A", "T"), New(1, "B", "S")}, conds)
}

func TestParseAxis(t *testing.T) {
	a, err := ParseAxis("Stage")
	require.NoError(t, err)
	assert.Equal(t, DevStage, a)
	assert.Equal(t, "strain", Strain.String())
	assert.Equal(t, "unknown", Axis(12).String())
}
