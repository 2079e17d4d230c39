package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInstructionPlaceOrder(t *testing.T) {
	inst, err := ParseInstruction(`place_order|{"seller":"shop.near","location":{"lat":-1,"lon":2},"percentage_insurance":10,"list_for_bidding":true,"items":[{"name":"tea","serial":"T1","price":3.25,"quantity":2,"reference":"r"}]}`)
	require.NoError(t, err)
	place, ok := inst.(PlaceOrderInstruction)
	require.True(t, ok)
	require.Equal(t, TagPlaceOrder, place.Tag())
	require.Equal(t, "shop.near", place.Cart.Seller)
	require.Equal(t, int64(-1), place.Cart.Location.Lat)
	require.True(t, place.Cart.ListForBidding)
	require.Len(t, place.Cart.Items, 1)
	require.Equal(t, "3.25", place.Cart.Items[0].Price.String())
}

func TestParseInstructionApproval(t *testing.T) {
	inst, err := ParseInstruction(`approve_proposal|{"order_id":"o1","courier_id":"c1"}`)
	require.NoError(t, err)
	require.Equal(t, ApproveProposalInstruction{Approval: Approval{OrderID: "o1", CourierID: "c1"}}, inst)
}

func TestParseInstructionSplitsAtFirstSeparator(t *testing.T) {
	inst, err := ParseInstruction(`approve_proposal|{"order_id":"a|b","courier_id":"c1"}`)
	require.NoError(t, err)
	require.Equal(t, "a|b", inst.(ApproveProposalInstruction).Approval.OrderID)
}

func TestParseInstructionUnknownTag(t *testing.T) {
	inst, err := ParseInstruction("tip|not even json")
	require.NoError(t, err)
	require.Equal(t, UnknownInstruction{Name: "tip"}, inst)
}

func TestParseInstructionRejectsMalformed(t *testing.T) {
	for _, msg := range []string{
		"",
		"place_order",
		"place_order|",
		"place_order|[]",
		`place_order|{"seller":"s","location":{"lat":0,"lon":0},"items":[{"name":"a","price":-1,"quantity":1}]}`,
		`place_order|{"seller":"s","location":{"lat":0,"lon":0},"percentage_insurance":101,"items":[]}`,
		`place_order|{"seller":"s","items":[]}`,
		`approve_proposal|{"order_id":""}`,
	} {
		_, err := ParseInstruction(msg)
		require.ErrorIs(t, err, ErrMalformedPayload, msg)
	}
}
