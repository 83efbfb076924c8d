package httpapi

// chatEventEnvelope is the outer shape every Slack Events API POST carries,
// used only to dispatch url_verification handshakes before the body ever
// reaches the chat adapter's own ParseIncoming.
type chatEventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// emailWebhookEnvelope mirrors the required fields of the design-tool
// comment-webhook payload. Binding and validating it here catches a
// malformed request at the transport boundary with a 400 before the raw
// body is handed to the email adapter's own (more detailed) parse.
type emailWebhookEnvelope struct {
	EmailSlug  string `json:"emailSlug" validate:"required"`
	FileKey    string `json:"fileKey" validate:"required"`
	CommentID  string `json:"commentId" validate:"required"`
	RawMessage string `json:"rawMessage" validate:"required"`
}
