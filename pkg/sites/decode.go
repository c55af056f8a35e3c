package sites

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// utf8Reader converts a page body to UTF-8 using the Content-Type charset,
// falling back to <meta> sniffing.
func utf8Reader(body []byte, contentType string) (io.Reader, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	return r, nil
}
