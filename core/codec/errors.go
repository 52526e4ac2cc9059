package codec

import "github.com/pkg/errors"

// ErrFormat marks malformed container or catalog bytes. It is never
// retryable.
var ErrFormat = errors.New("codec: malformed data")
