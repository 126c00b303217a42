package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntToBinaryString(t *testing.T) {
	require.Equal(t, "11000000000000000000000010", IntToBinaryString(50331650, 26))
	require.Equal(t, "11000000000000000000000000", IntToBinaryString(50331648, 26))
	require.Equal(t, "0101", IntToBinaryString(5, 4))
}

func TestToInt(t *testing.T) {
	require.Equal(t, 0, ToInt(nil))
	require.Equal(t, 5, ToInt(5))
	require.Equal(t, 5, ToInt(float64(5)))
	require.Equal(t, 12, ToInt(" 12 "))
	require.Equal(t, 0, ToInt("abc"))
}
