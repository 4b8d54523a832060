package utils

import (
	"fmt"
	"regexp"

	"github.com/asaskevich/govalidator"
)

// rxUserID constrains submitter and owner identifiers: 1-64 chars drawn from
// letters, digits, underscore and hyphen.
var rxUserID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	if !rxUserID.MatchString(userID) {
		return fmt.Errorf("user id must be 1-64 characters of [A-Za-z0-9_-]")
	}

	return nil
}

// ValidateUUID accepts canonical version-4 UUIDs only. Job and worker ids are
// rejected at every boundary when malformed.
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if !govalidator.IsUUIDv4(id) {
		return fmt.Errorf("id is not a valid v4 UUID")
	}

	return nil
}

func IsValidUserID(userID string) bool {
	return ValidateUserID(userID) == nil
}

func IsValidUUID(id string) bool {
	return ValidateUUID(id) == nil
}
