// Package dify is a client for the Dify chat application API.
package dify

const (
	ResponseModeStreaming = "streaming"
	ResponseModeBlocking  = "blocking"
)

type EventKind string

const (
	EventMessage    EventKind = "message"
	EventMessageEnd EventKind = "message_end"
	EventError      EventKind = "error"
)

// Usage is the token accounting attached to message_end.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Event is one item of a chat response.
type Event struct {
	Kind           EventKind
	Answer         string
	ConversationID string
	MessageID      string
	Usage          *Usage
	Message        string
}

// File references an uploaded file in a chat request.
type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

// LocalFile builds a File for an upload id. Image mimes map to "image",
// everything else to "document".
func LocalFile(uploadID, mime string) File {
	kind := "document"
	if len(mime) >= 6 && mime[:6] == "image/" {
		kind = "image"
	}
	return File{Type: kind, TransferMethod: "local_file", UploadFileID: uploadID}
}

// ChatRequest is the body of POST /chat-messages.
type ChatRequest struct {
	Inputs           map[string]any `json:"inputs"`
	Query            string         `json:"query"`
	ResponseMode     string         `json:"response_mode"`
	User             string         `json:"user"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	AutoGenerateName bool           `json:"auto_generate_name"`
	Files            []File         `json:"files,omitempty"`
}

// UploadedFile is the response of POST /files/upload.
type UploadedFile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
}

// wireEvent is the JSON shape shared by SSE data lines and blocking responses.
type wireEvent struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Message        string `json:"message"`
	Code           string `json:"code"`
	Metadata       struct {
		Usage *Usage `json:"usage"`
	} `json:"metadata"`
}
