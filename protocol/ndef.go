package protocol

// NDEFMessageInput is an NDEF message supplied by a client.
type NDEFMessageInput struct {
	Records []NDEFRecordInput `json:"records"`
}

// NDEFRecordInput is a single well-known record.
type NDEFRecordInput struct {
	RecordType string `json:"recordType"`         // "text" or "uri"
	Content    string `json:"content"`            // text or URI
	Language   string `json:"language,omitempty"` // text records, default "en"
}
