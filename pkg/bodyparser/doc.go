// Package bodyparser consumes raw HTTP request bodies according to their
// declared content type.
//
// Dispatch is by case-insensitive substring match on the media type, first
// match wins: JSON decodes into a map (an empty body decodes to an empty
// map, not an error), urlencoded and multipart forms decode into key/value
// maps (multipart file parts stay binary), text/plain reads as a string,
// application/octet-stream reads as raw bytes, large binary media (pdf,
// image/*, video/*) and application/stream surface the live stream as a
// Blob without buffering, and anything else falls back to text.
//
// A route with no declared body schema, or a request without a body, parses
// to nil with no error. Malformed input for a declared schema produces a
// *ParseError wrapping ErrMalformedBody with the underlying decoder message
// as details.
package bodyparser
