package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer abc ,x-tenant=market,broken,=novalue,")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "market",
	}, got)
	require.Empty(t, ParseHeaders(""))
}

func TestInitValidatesConfig(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	_, err = Init(context.Background(), Config{ServiceName: "deliveryd", SampleRatio: 1.5})
	require.Error(t, err)
}

func TestInitWithoutExportersOnlyInstallsPropagator(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "deliveryd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
