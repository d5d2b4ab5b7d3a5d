//go:build !sqlite
// +build !sqlite

package settings

import (
	"errors"

	"mxnotify/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	return nil, errors.New("settings: sqlite driver not built in (build with -tags sqlite)")
}
