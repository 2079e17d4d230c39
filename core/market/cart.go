package market

import (
	"fmt"
	"math/big"
	"strings"

	"deliverynet/core/types"
	"deliverynet/native/orders"
)

const priceBits = 512

// ScalePrice converts a decimal price in whole token units to base units:
// round(price * 10^precision), half away from zero. Negative prices scale to
// zero and results above 128 bits are clamped to types.MaxAmount.
func ScalePrice(price string, precision uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty price", ErrMalformedPayload)
	}
	value, _, err := big.ParseFloat(trimmed, 10, priceBits, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q: %v", ErrMalformedPayload, price, err)
	}
	if value.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if value.IsInf() {
		return new(big.Int).Set(types.MaxAmount), nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	value.Mul(value, new(big.Float).SetPrec(priceBits).SetInt(scale))
	value.Add(value, big.NewFloat(0.5))
	scaled, _ := value.Int(nil)
	if scaled.Cmp(types.MaxAmount) > 0 {
		return new(big.Int).Set(types.MaxAmount), nil
	}
	return scaled, nil
}

// saturatingAdd returns sum + v, or sum unchanged when the addition would
// exceed types.MaxAmount.
func saturatingAdd(sum, v *big.Int) *big.Int {
	next := new(big.Int).Add(sum, v)
	if next.Cmp(types.MaxAmount) > 0 {
		return sum
	}
	return next
}

// PriceCart scales every cart line and returns the order items with their
// saturating total. Quantities are recorded but do not multiply the price.
func PriceCart(cart Cart, precision uint8) ([]orders.OrderItem, *big.Int, error) {
	items := make([]orders.OrderItem, 0, len(cart.Items))
	total := big.NewInt(0)
	for i, line := range cart.Items {
		price, err := ScalePrice(line.Price.String(), precision)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, orders.OrderItem{
			Name:      line.Name,
			Serial:    line.Serial,
			Price:     price,
			Quantity:  line.Quantity,
			Reference: line.Reference,
		})
		total = saturatingAdd(total, price)
	}
	return items, total, nil
}

func validateCart(cart Cart) error {
	if strings.TrimSpace(cart.Seller) == "" {
		return fmt.Errorf("%w: seller required", ErrMalformedPayload)
	}
	if cart.PercentageInsurance > 100 {
		return fmt.Errorf("%w: insurance percentage above 100", ErrMalformedPayload)
	}
	return nil
}
