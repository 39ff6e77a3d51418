// Package keyringconfig stores the bilibili session cookie in the OS
// keyring so it never has to live in a plaintext config file.
package keyringconfig

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	Service = "bilifavdl" // Keyring service name
	User    = "default"   // Default keyring user
)

// GetCookie returns the session cookie, preferring one already supplied
// by flag, env or config file over the keyring entry.
func GetCookie(currentCookie string) (string, error) {
	if currentCookie != "" {
		return currentCookie, nil
	}

	cookie, err := keyring.Get(Service, User)
	if err == nil {
		return cookie, nil
	}

	if err != keyring.ErrNotFound {
		return "", fmt.Errorf("failed to access keyring: %w. Ensure the keyring service is running and you have appropriate permissions", err)
	}

	return "", fmt.Errorf("no session cookie found in keyring for service '%s' and user '%s'. Run 'bilifavdl configure' or set the cookies option / BILIFAVDL_COOKIES environment variable", Service, User)
}

func SetCookie(cookie string) error {
	if cookie == "" {
		return fmt.Errorf("cookie must not be empty")
	}
	if err := keyring.Set(Service, User, cookie); err != nil {
		return fmt.Errorf("failed to store cookie in keyring: %w", err)
	}
	return nil
}

func DeleteCookie() error {
	err := keyring.Delete(Service, User)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete cookie from keyring: %w", err)
	}
	return nil
}
