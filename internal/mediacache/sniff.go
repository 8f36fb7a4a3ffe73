// SPDX-License-Identifier: MIT

package mediacache

import "bytes"

// Sniff matches the leading bytes of a download against known audio
// signatures. It returns the format name and whether the signature was
// recognized; callers accept unknown signatures with a warning rather than
// rejecting them.
func Sniff(head []byte) (string, bool) {
	if len(head) < 4 {
		return "", false
	}
	switch {
	case bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav", true
	case bytes.HasPrefix(head, []byte("ID3")), bytes.HasPrefix(head, []byte{0xFF, 0xFB}):
		return "mp3", true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return "flac", true
	case bytes.HasPrefix(head, []byte("OggS")):
		return "ogg", true
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return "m4a", true
	}
	return "", false
}
