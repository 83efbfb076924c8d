package httpapi

import "time"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// AckResponse is returned by both webhook endpoints once the pipeline has
// run to completion for that request (§1 expansion: synchronous, no queue
// in front of the orchestrator).
type AckResponse struct {
	Status string `json:"status"`
}

// ChallengeResponse answers a Slack Events API url_verification handshake.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}
