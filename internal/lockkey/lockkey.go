// Package lockkey holds internal details of application-lock resource
// naming that are needed in multiple places.
package lockkey

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxResourceLen is the server-imposed limit on resource names, in
// characters. Names are sent as nvarchar(255) procedure parameters.
const MaxResourceLen = 255

// Validate reports whether a resource name can be sent to the server.
//
// Validation happens client-side before any wire traffic so that a
// malformed name never consumes a round trip.
func Validate(resource string) error {
	switch {
	case resource == "":
		return errors.New("empty resource name")
	case !utf8.ValidString(resource):
		return errors.New("resource name is not valid UTF-8")
	case utf8.RuneCountInString(resource) > MaxResourceLen:
		return fmt.Errorf("resource name exceeds %d characters", MaxResourceLen)
	}
	return nil
}
