package server

import "errors"

// ErrStationOffline is returned by SendCall when the target station has no
// writable connection.
var ErrStationOffline = errors.New("station not connected")
