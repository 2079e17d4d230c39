package market

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deliverynet/core/types"
)

func TestScalePrice(t *testing.T) {
	tenPow17, _ := new(big.Int).SetString("100000000000000000", 10)
	cases := []struct {
		price     string
		precision uint8
		want      *big.Int
	}{
		{"12.50", 2, big.NewInt(1250)},
		{"12.5", 2, big.NewInt(1250)},
		{"0.125", 2, big.NewInt(13)},
		{"0.124", 2, big.NewInt(12)},
		{"0.1", 18, tenPow17},
		{"0", 18, big.NewInt(0)},
		{"-3", 2, big.NewInt(0)},
		{"1e40", 18, types.MaxAmount},
		{"7", 0, big.NewInt(7)},
	}
	for _, tc := range cases {
		got, err := ScalePrice(tc.price, tc.precision)
		require.NoError(t, err, tc.price)
		require.Equal(t, 0, tc.want.Cmp(got), "price %s: got %s want %s", tc.price, got, tc.want)
	}

	_, err := ScalePrice("abc", 2)
	require.ErrorIs(t, err, ErrMalformedPayload)
	_, err = ScalePrice(" ", 2)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPriceCartSaturates(t *testing.T) {
	cart := Cart{Seller: "s", Items: []CartItem{
		{Name: "a", Price: json.Number("3.4e38"), Quantity: 1},
		{Name: "b", Price: json.Number("3.4e38"), Quantity: 1},
	}}
	items, total, err := PriceCart(cart, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 0, total.Cmp(items[0].Price))
	require.True(t, total.Cmp(types.MaxAmount) <= 0)
}

func TestPriceCartIgnoresQuantity(t *testing.T) {
	cart := Cart{Seller: "s", Items: []CartItem{
		{Name: "a", Price: json.Number("1.5"), Quantity: 4},
		{Name: "b", Price: json.Number("2"), Quantity: 0},
	}}
	items, total, err := PriceCart(cart, 1)
	require.NoError(t, err)
	require.Equal(t, "35", total.String())
	require.Equal(t, uint16(4), items[0].Quantity)

	_, _, err = PriceCart(Cart{Items: []CartItem{{Price: json.Number("x")}}}, 1)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestValidateCart(t *testing.T) {
	require.ErrorIs(t, validateCart(Cart{}), ErrMalformedPayload)
	require.ErrorIs(t, validateCart(Cart{Seller: "s", PercentageInsurance: 101}), ErrMalformedPayload)
	require.NoError(t, validateCart(Cart{Seller: "s", PercentageInsurance: 100}))
}
