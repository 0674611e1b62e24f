// Package topic defines the channel addressing scheme for household
// location broadcasts.
package topic

import (
	"strconv"
	"strings"
)

// Prefix is the topic family carrying live member positions, one topic
// per household.
const Prefix = "household-location:"

// ForHousehold returns the location topic for a household.
func ForHousehold(householdID int64) string {
	return Prefix + strconv.FormatInt(householdID, 10)
}

// HouseholdID extracts the household id from a location topic. The second
// return value is false when the topic is not part of the location family,
// including when the suffix is not a positive integer in canonical form:
// "007" or "+7" name topics that ForHousehold never produces, so they
// carry no broadcasts and grant no access.
func HouseholdID(topic string) (int64, bool) {
	suffix, ok := strings.CutPrefix(topic, Prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || id <= 0 || suffix != strconv.FormatInt(id, 10) {
		return 0, false
	}
	return id, true
}

// IsLocationTopic reports whether a topic belongs to the protected
// location family.
func IsLocationTopic(topic string) bool {
	_, ok := HouseholdID(topic)
	return ok
}
