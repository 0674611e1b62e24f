// Package location carries live position reports from both transports
// into the household broadcast fan-out.
package location

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrIncomplete marks an update missing a required field.
var ErrIncomplete = errors.New("incomplete location update")

// Update is the position report payload shared by the WebSocket and REST
// paths. Pointer fields distinguish absent values from zero; the
// timestamp is implicit receipt time.
type Update struct {
	UserID    *int64   `json:"userId" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

// Validate requires userId, latitude and longitude to be present and the
// coordinates to be finite.
func (u *Update) Validate() error {
	if err := validate.Struct(u); err != nil {
		return ErrIncomplete
	}
	if !isFinite(*u.Latitude) || !isFinite(*u.Longitude) {
		return ErrIncomplete
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
