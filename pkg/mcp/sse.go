package mcp

import "bytes"

// SSEFrame formats a JSON payload as the server-sent-events frame Hermod
// forwards to held connections: "event: message\ndata: <json>\n\n".
func SSEFrame(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 32)
	buf.WriteString("event: message\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes()
}
