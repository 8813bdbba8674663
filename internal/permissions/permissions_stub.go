//go:build !darwin

package permissions

import "github.com/rs/zerolog"

// CheckMicrophone always reports access outside macOS.
func CheckMicrophone() Status {
	return Authorized
}

// EnsurePermissions is a no-op on non-macOS platforms.
func EnsurePermissions(log zerolog.Logger) error {
	return nil
}
