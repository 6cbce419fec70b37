package domain

// Attachment is an uploaded binary (usually an image) scoped to a conversation.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// AttachmentStore is the explicitly scoped replacement for ambient upload state.
type AttachmentStore interface {
	Set(a Attachment)
	Get(id string) (Attachment, bool)
	// Current returns the most recently set attachment.
	Current() (Attachment, bool)
	Clear()
}
