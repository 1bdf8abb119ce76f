package transport

import "errors"

var (
	// ErrUnknownTransport は未対応の通信方式が指定されたことを示すエラー
	ErrUnknownTransport = errors.New("unknown transport type")
)
