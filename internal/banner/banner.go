// Package banner renders the comment header stamped onto generated assets.
package banner

import (
	"bytes"
	"fmt"
	"strings"
)

const bannerTemplateConstant = "/*! %s */\n"

var (
	byteOrderMark    = []byte("\xEF\xBB\xBF")
	charsetDirective = []byte("@charset")
)

// Render returns the banner line for the named package.
func Render(packageName string) string {
	return fmt.Sprintf(bannerTemplateConstant, strings.TrimSpace(packageName))
}

// Prepend returns content with the banner for the named package placed at its top.
// A leading byte order mark and a leading @charset rule stay ahead of the banner.
func Prepend(packageName string, content []byte) []byte {
	header := Render(packageName)
	insertAt := preambleLength(content)

	combined := make([]byte, 0, len(header)+len(content)+1)
	combined = append(combined, content[:insertAt]...)
	if insertAt > 0 && content[insertAt-1] == ';' {
		combined = append(combined, '\n')
	}
	combined = append(combined, header...)
	return append(combined, content[insertAt:]...)
}

// preambleLength measures the byte order mark and @charset rule that must open a stylesheet.
func preambleLength(content []byte) int {
	length := 0
	if bytes.HasPrefix(content, byteOrderMark) {
		length = len(byteOrderMark)
	}
	if !bytes.HasPrefix(content[length:], charsetDirective) {
		return length
	}

	terminatorIndex := bytes.IndexByte(content[length:], ';')
	if terminatorIndex < 0 {
		return length
	}
	length += terminatorIndex + 1
	switch {
	case bytes.HasPrefix(content[length:], []byte("\r\n")):
		length += 2
	case bytes.HasPrefix(content[length:], []byte("\n")):
		length++
	}
	return length
}
