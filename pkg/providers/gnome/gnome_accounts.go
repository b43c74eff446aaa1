package gnome

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName        = "org.gnome.OnlineAccounts"
	managerPath    = "/org/gnome/OnlineAccounts"
	accountIface   = "org.gnome.OnlineAccounts.Account"
	calendarIface  = "org.gnome.OnlineAccounts.Calendar"
	oauthIface     = "org.gnome.OnlineAccounts.OAuthBased"
	oauth2Iface    = "org.gnome.OnlineAccounts.OAuth2Based"
	objectManager  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	calendarURIKey = "Uri"
)

// OnlineAccount represents a GNOME Online Account
type OnlineAccount struct {
	ID           string
	ProviderType string
	ProviderName string
	Identity     string // email
	CalendarURL  string
}

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Accounts returns every GNOME Online Account offering a calendar
func Accounts(ctx context.Context) ([]*OnlineAccount, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var objects managedObjects
	err = conn.Object(busName, managerPath).CallWithContext(ctx, objectManager, 0).Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return parseAccounts(objects), nil
}

// FindAccount returns the calendar account whose identity or object path is
// ref. An empty ref selects the only account, if there is exactly one.
func FindAccount(ctx context.Context, ref string) (*OnlineAccount, error) {
	accounts, err := Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return pickAccount(accounts, ref)
}

func pickAccount(accounts []*OnlineAccount, ref string) (*OnlineAccount, error) {
	if ref == "" {
		if len(accounts) == 1 {
			return accounts[0], nil
		}
		return nil, fmt.Errorf("found %d calendar accounts, name one by identity", len(accounts))
	}
	for _, a := range accounts {
		if a.ID == ref || strings.EqualFold(a.Identity, ref) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no GNOME Online Account matches %q", ref)
}

func parseAccounts(objects managedObjects) []*OnlineAccount {
	var accounts []*OnlineAccount
	for path, ifaces := range objects {
		props, ok := ifaces[accountIface]
		if !ok {
			continue
		}
		cal, ok := ifaces[calendarIface]
		if !ok {
			continue
		}
		accounts = append(accounts, &OnlineAccount{
			ID:           string(path),
			ProviderType: variantString(props["ProviderType"]),
			ProviderName: variantString(props["ProviderName"]),
			Identity:     variantString(props["Identity"]),
			CalendarURL:  variantString(cal[calendarURIKey]),
		})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})
	return accounts
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

// GetOAuthToken gets the OAuth access token for an account
func GetOAuthToken(ctx context.Context, accountPath string) (string, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return "", fmt.Errorf("failed to connect to session bus: %w", err)
	}

	obj := conn.Object(busName, dbus.ObjectPath(accountPath))

	var token string
	var expiresIn int32
	err = obj.CallWithContext(ctx, oauth2Iface+".GetAccessToken", 0).Store(&token, &expiresIn)
	if err != nil {
		// Try OAuthBased interface
		var secret string
		err = obj.CallWithContext(ctx, oauthIface+".GetAccessToken", 0).Store(&token, &secret)
		if err != nil {
			return "", fmt.Errorf("failed to get access token: %w", err)
		}
	}

	return token, nil
}

// TokenSource returns a function asking GNOME for the account's current
// token on every call.
func TokenSource(accountPath string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return GetOAuthToken(ctx, accountPath)
	}
}
