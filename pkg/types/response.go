package types

type SuccessEnvelope struct {
	Data   any     `json:"data"`
	Notice *Notice `json:"notice,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
)

// Notice is a non-fatal outcome shown next to successful results, such as a
// clamped quantity or a save that changed nothing.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

func InfoNotice(message string) *Notice {
	return &Notice{Kind: NoticeInfo, Message: message}
}

func WarningNotice(message string) *Notice {
	return &Notice{Kind: NoticeWarning, Message: message}
}
