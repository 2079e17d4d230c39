package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deliverynet/core/state"
	"deliverynet/native/orders"
	"deliverynet/storage"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return New(state.NewManager(db))
}

func registration(vehicle string) CourierRegistration {
	return CourierRegistration{
		Name:      "Wanjiru",
		Phone:     "+254700000000",
		Email:     "w@example.com",
		Image:     "ipfs://avatar",
		Vehicle:   vehicle,
		MakeModel: "Honda Ace",
		PlateID:   "KMEA 123A",
	}
}

func TestRegisterCourier(t *testing.T) {
	d := newTestDirectory(t)
	courier, err := d.RegisterCourier("courier.near", registration("TukTuk"))
	require.NoError(t, err)
	require.Equal(t, VehicleTuktuk, courier.Vehicle)
	require.False(t, courier.OnTransit)
	require.Nil(t, courier.Feedback)

	got, ok, err := d.Courier("courier.near")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, courier, got)

	_, err = d.RegisterCourier("courier.near", registration("bicycle"))
	require.ErrorIs(t, err, ErrInvalidVehicle)
}

func TestParseVehicle(t *testing.T) {
	for i, name := range []string{"motorcycle", "tuktuk", "car", "pickup", "lorry"} {
		v, err := ParseVehicle(name)
		require.NoError(t, err)
		require.Equal(t, Vehicle(i), v)
		require.Equal(t, name, v.String())
	}
}

func TestRegisterCompany(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.RegisterCompany("seller.near", Company{Name: "Shop"})
	require.ErrorIs(t, err, ErrInvalidCompany)

	_, err = d.RegisterCompany("seller.near", Company{
		Name:     "Shop",
		Wallet:   "wallet.seller.near",
		Location: orders.Coordinate{Lat: -1, Lon: 2},
	})
	require.NoError(t, err)

	company, ok, err := d.Company("seller.near")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "wallet.seller.near", company.Wallet)
	require.Equal(t, int64(-1), company.Location.Lat)

	_, ok, err = d.Company("unknown.near")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveCompanyLinksBothWays(t *testing.T) {
	d := newTestDirectory(t)
	require.ErrorIs(t, d.SaveCompany("courier.near", "seller.near"), ErrCompanyNotFound)

	_, err := d.RegisterCompany("seller.near", Company{Name: "Shop", Wallet: "wallet.near"})
	require.NoError(t, err)
	require.ErrorIs(t, d.SaveCompany("courier.near", "seller.near"), ErrCourierNotFound)

	_, err = d.RegisterCourier("courier.near", registration("car"))
	require.NoError(t, err)
	require.NoError(t, d.SaveCompany("courier.near", "seller.near"))
	require.NoError(t, d.SaveCompany("courier.near", "seller.near"))

	profiles, err := d.CompanyCouriers("seller.near", 0, 10)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Zero(t, profiles[0].Deliveries)
	require.Equal(t, "courier.near", profiles[0].Profile.ID)

	companies, err := d.CourierCompanies("courier.near", 0, 10)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	require.Equal(t, "seller.near", companies[0].ID)

	companies, err = d.CourierCompanies("courier.near", 1, 10)
	require.NoError(t, err)
	require.Empty(t, companies)
}
