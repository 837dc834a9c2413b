package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("RESCUECTL_TEST_PASS", "correct horse")
	src := NewSource("RESCUECTL_TEST_PASS")

	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", value)

	t.Setenv("RESCUECTL_TEST_PASS", "changed")
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", value, "value is cached after first read")
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("RESCUECTL_TEST_PASS", "   ")
	_, err := NewSource("RESCUECTL_TEST_PASS").Get()
	require.ErrorContains(t, err, "RESCUECTL_TEST_PASS is set but empty")
}

func TestLabeledSourceDefaultsLabel(t *testing.T) {
	src := NewLabeledSource("", " ")
	require.Equal(t, "keystore passphrase", src.label)
}
