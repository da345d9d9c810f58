package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockstep-sim/lockstep/internal/fixed"
)

func TestLoadEmbeddedRegistry(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	km, ok := reg.Lookup("kilometers")
	require.True(t, ok)
	assert.Equal(t, Dim{DimLength: 1}, km.Dim)
	assert.Equal(t, fixed.MustInt(1000), km.Scale)

	tick, ok := reg.Lookup("ticks")
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("0.05"), tick.Scale)

	_, ok = reg.Lookup("furlongs")
	assert.False(t, ok)
}

func TestCanonicalUnitPerDimension(t *testing.T) {
	reg := MustLoad()
	cases := []struct {
		dim  Dim
		want string
	}{
		{Dim{DimLength: 1}, "meters"},
		{Dim{DimTime: 1}, "seconds"},
		{Dim{DimMass: 1}, "kilograms"},
		{Dim{DimAngle: 1}, "radians"},
		{Dim{DimCount: 1}, "items"},
		{Dim{DimLength: 1, DimTime: -1}, "mps"},
	}
	for _, tc := range cases {
		u, ok := reg.CanonicalUnit(tc.dim)
		require.True(t, ok, tc.want)
		assert.Equal(t, tc.want, u.Name)
	}

	_, ok := reg.CanonicalUnit(Dim{DimMass: 3})
	assert.False(t, ok)
}

func TestResolveSuffix(t *testing.T) {
	reg := MustLoad()

	u, err := reg.ResolveSuffix("kilom")
	require.NoError(t, err)
	assert.Equal(t, "kilometers", u.Name)

	// Exact name beats being a prefix of another unit.
	u, err = reg.ResolveSuffix("mps")
	require.NoError(t, err)
	assert.Equal(t, "mps", u.Name)

	_, err = reg.ResolveSuffix("k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "kilograms")
	assert.Contains(t, err.Error(), "kilometers")

	_, err = reg.ResolveSuffix("furl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit")
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(map[string]Unit{"": {Scale: fixed.One}})
	assert.Error(t, err)

	reg, err := NewRegistry(map[string]Unit{
		"beats": {Dim: Dim{DimTime: 1}, Scale: fixed.MustParse("0.5")},
	})
	require.NoError(t, err)
	u, ok := reg.Lookup("beats")
	require.True(t, ok)
	assert.Equal(t, "beats", u.Name)
}

func TestDimArithmetic(t *testing.T) {
	length := Dim{DimLength: 1}
	dtime := Dim{DimTime: 1}

	speed := length.Div(dtime)
	assert.Equal(t, Dim{DimLength: 1, DimTime: -1}, speed)

	back := speed.Mul(dtime)
	assert.Equal(t, length, back)

	assert.True(t, length.Div(length).IsScalar())
	assert.False(t, speed.IsScalar())
}

func TestDimString(t *testing.T) {
	cases := []struct {
		dim  Dim
		want string
	}{
		{Scalar, "1"},
		{Dim{DimLength: 1}, "length"},
		{Dim{DimLength: 2}, "length^2"},
		{Dim{DimTime: -1}, "1/time"},
		{Dim{DimLength: 1, DimTime: -2}, "length/time^2"},
		{Dim{DimLength: 2, DimMass: 1, DimTime: -2}, "length^2*mass/time^2"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.dim.String())
	}
}

func TestNamesSortedAndCopied(t *testing.T) {
	reg := MustLoad()
	names := reg.Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	names[0] = "mutated"
	assert.NotEqual(t, "mutated", reg.Names()[0])
}
