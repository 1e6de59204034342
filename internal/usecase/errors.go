package usecase

import "errors"

var errStreamClosed = errors.New("news stream closed")
