package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetters(t *testing.T) {
	t.Setenv("SONGBID_TEST_STRING", "value")
	t.Setenv("SONGBID_TEST_INT", "42")
	t.Setenv("SONGBID_TEST_BOOL", "true")
	t.Setenv("SONGBID_TEST_DURATION", "2m")

	require.Equal(t, "value", GetString("SONGBID_TEST_STRING", "default"))
	require.Equal(t, "default", GetString("SONGBID_TEST_MISSING", "default"))

	require.Equal(t, 42, GetInt("SONGBID_TEST_INT", 7))
	require.Equal(t, 7, GetInt("SONGBID_TEST_MISSING", 7))

	require.True(t, GetBool("SONGBID_TEST_BOOL", false))
	require.False(t, GetBool("SONGBID_TEST_MISSING", false))

	require.Equal(t, 2*time.Minute, GetDuration("SONGBID_TEST_DURATION", time.Second))
	require.Equal(t, time.Second, GetDuration("SONGBID_TEST_MISSING", time.Second))
}

func TestGetIntPanicsOnGarbage(t *testing.T) {
	t.Setenv("SONGBID_TEST_INT", "forty-two")

	require.Panics(t, func() { GetInt("SONGBID_TEST_INT", 0) })
}
