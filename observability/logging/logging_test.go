package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("deliveryd", "test", Options{Output: &buf})
	logger.Info("order placed",
		MaskField("payer", "alice.near"),
		MaskField("orderId", "o1"),
		MaskField("phone", "+254700000000"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "order placed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "deliveryd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "al***.near", line["payer"])
	require.Equal(t, "o1", line["orderId"])
	require.Equal(t, RedactedValue, line["phone"])
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("deliveryd", "", Options{Output: &buf, Level: ParseLevel("warn")})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestSetupTeesIntoFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "deliveryd.log")
	logger := Setup("deliveryd", "", Options{Output: &buf, File: path})
	logger.Info("hello")
	require.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMaskAccount(t *testing.T) {
	cases := map[string]string{
		"alice.near":       "al***.near",
		"seller.shop.near": "se***.near",
		"bob":              "bo***",
		"jo.near":          "***.near",
		".near":            ".n***",
		" ":                " ",
	}
	for in, want := range cases {
		require.Equal(t, want, MaskAccount(in), in)
	}
	require.True(t, IsAllowlisted(" EscrowId"))
	require.False(t, IsAllowlisted("payer"))
}
