package recommender

import "errors"

var ErrInvalidRecord = errors.New("invalid record")
