package model

// NoSubject is used as the note title when a message carries no subject.
const NoSubject = "EMAIL HAD NO SUBJECT"

// RawMessage is a single message as fetched from a mail source.
type RawMessage struct {
	ID  string
	Raw []byte
}

// Attachment is a decoded attachment part. Path is empty until the
// attachment has been written to the staging area.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	Path        string
}

// DecodedMessage holds everything the importer needs from one message.
type DecodedMessage struct {
	ID          string
	Subject     string
	Sender      string
	Body        string
	BodyErr     error
	Attachments []Attachment
}

// ImportOutcome is the result of handing a decoded message to the note store.
type ImportOutcome struct {
	Success     bool
	Attachments int
	Recovered   bool
}
