package domain

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ParseID validates a 24 character hex identifier and converts it to an ObjectID.
func ParseID(s string) (primitive.ObjectID, error) {
	if !objectIDPattern.MatchString(s) {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
