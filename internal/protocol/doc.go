// Package protocol defines the JSON envelopes exchanged with the gateway
// and encodes and decodes them.
//
// Every frame is a UTF-8 JSON object carrying a "type" ("req" or "res")
// and a correlation "id". The codec is stateless:
//
//   - Decode classifies a frame by kind without interpreting its body.
//   - DecodeConnectResponse and DecodeInvokeRequest parse typed payloads.
//   - Encode serialises any envelope.
//
// Unknown fields are ignored on decode. On encode every documented field
// is written, including zero values; nullable fields are written as null
// rather than omitted, because the gateway checks for field presence.
package protocol
