package notify

import "errors"

var (
	ErrUnknownChannel = errors.New("notify: unknown channel type")
	ErrEmptyImage     = errors.New("notify: image has neither url nor base64")
	ErrNoUploader     = errors.New("notify: channel requires a media uploader for inline images")
)
