//go:build !linux

package units

import "context"

func Open(context.Context) (Reader, error) { return nil, ErrUnsupported }
