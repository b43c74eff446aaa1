package gnome

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccounts(t *testing.T) {
	objects := managedObjects{
		"/org/gnome/OnlineAccounts/Accounts/account_2": {
			accountIface: {
				"ProviderType": dbus.MakeVariant("google"),
				"ProviderName": dbus.MakeVariant("Google"),
				"Identity":     dbus.MakeVariant("ada@example.com"),
			},
			calendarIface: {
				calendarURIKey: dbus.MakeVariant("https://apidata.googleusercontent.com/caldav/v2/"),
			},
		},
		"/org/gnome/OnlineAccounts/Accounts/account_1": {
			accountIface: {
				"ProviderType": dbus.MakeVariant("owncloud"),
				"Identity":     dbus.MakeVariant("ada"),
			},
			calendarIface: {},
		},
		"/org/gnome/OnlineAccounts/Accounts/account_3": {
			accountIface: {"ProviderType": dbus.MakeVariant("imap_smtp")},
		},
		"/org/gnome/OnlineAccounts/Manager": {},
	}

	accounts := parseAccounts(objects)
	require.Len(t, accounts, 2)
	assert.Equal(t, "/org/gnome/OnlineAccounts/Accounts/account_1", accounts[0].ID)
	assert.Equal(t, "owncloud", accounts[0].ProviderType)
	assert.Empty(t, accounts[0].CalendarURL)

	assert.Equal(t, "google", accounts[1].ProviderType)
	assert.Equal(t, "Google", accounts[1].ProviderName)
	assert.Equal(t, "ada@example.com", accounts[1].Identity)
	assert.Equal(t, "https://apidata.googleusercontent.com/caldav/v2/", accounts[1].CalendarURL)
}

func TestPickAccount(t *testing.T) {
	one := &OnlineAccount{ID: "/a/1", Identity: "Ada@example.com"}
	two := &OnlineAccount{ID: "/a/2", Identity: "bob@example.com"}

	got, err := pickAccount([]*OnlineAccount{one}, "")
	require.NoError(t, err)
	assert.Same(t, one, got)

	_, err = pickAccount([]*OnlineAccount{one, two}, "")
	assert.Error(t, err)

	got, err = pickAccount([]*OnlineAccount{one, two}, "ada@EXAMPLE.com")
	require.NoError(t, err)
	assert.Same(t, one, got)

	got, err = pickAccount([]*OnlineAccount{one, two}, "/a/2")
	require.NoError(t, err)
	assert.Same(t, two, got)

	_, err = pickAccount([]*OnlineAccount{one, two}, "carol")
	assert.Error(t, err)

	_, err = pickAccount(nil, "")
	assert.Error(t, err)
}
