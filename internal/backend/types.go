package backend

// PreferencesPath is the user-preference endpoint.
const PreferencesPath = "/api/user/preferences"

// Request headers carried by every sync.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderSyncSequence = "X-Sync-Sequence"
)

// PreferencesRequest is the body of a theme update.
type PreferencesRequest struct {
	Theme string `json:"theme"`
}

// PreferencesResponse is returned by GET and, optionally, PUT.
type PreferencesResponse struct {
	Theme     string `json:"theme"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// ErrorResponse is the error body shape of the preference service.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}
