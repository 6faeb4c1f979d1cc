package replica

import "errors"

var ErrDisconnected = errors.New("replica disconnected")
