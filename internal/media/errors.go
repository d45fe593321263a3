package media

import "errors"

var (
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrDownloadFailed indicates the platform file could not be fetched.
	ErrDownloadFailed = errors.New("media download failed")
)
