package locales

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"en-US", "en"},
		{"de", "de"},
		{"de-AT", "de"},
		{"fr", "fr"},
		{"es-419", "es"},
		{"it", "it"},
		{"ru", "ru"},
		{"ar", "ar"},
		{"tr", "tr"},
		{"", "en"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizeRejectsUnsupported(t *testing.T) {
	for _, in := range []string{"ja", "zh-CN", "pt-BR"} {
		_, err := Normalize(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize("not a locale!!")
	assert.Error(t, err)
}

func TestAll(t *testing.T) {
	all := All()
	assert.Len(t, all, 8)
	assert.Equal(t, "en", all[0])
	assert.Contains(t, all, "ar")
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("de"))
	assert.False(t, Supported("ja"))
}
