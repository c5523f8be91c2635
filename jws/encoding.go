package jwskit

import "encoding/base64"

// EncodeSegment encodes b as unpadded base64url, the JWS segment encoding.
func EncodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// SigningInput rebuilds the bytes covered by the signature: the protected header
// segment as received, a dot, and the request body freshly encoded.
func SigningInput(headerSegment string, body []byte) []byte {
	enc := EncodeSegment(body)
	out := make([]byte, 0, len(headerSegment)+1+len(enc))
	out = append(out, headerSegment...)
	out = append(out, '.')
	out = append(out, enc...)
	return out
}
