package model

// Operator is one chat-bot account. ChatID is zero while no chat session is
// bound; HasLogged is true only while a session is bound.
type Operator struct {
	ID          string `json:"id"`
	AccessToken string `json:"accessToken"`
	ChatID      int64  `json:"chatID"`
	HasLogged   bool   `json:"hasLogged"`
}

// Reference pairs a finalized log file with its current one-time credential.
type Reference struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// RecorderStatus is a point-in-time snapshot of the dataset recorder.
type RecorderStatus struct {
	Recording  bool   `json:"isRecording"`
	RowCount   int    `json:"recordCount"`
	IntervalMs int64  `json:"recordingInterval"`
	UptimeMs   int64  `json:"uptime"`
	Timestamp  string `json:"timestamp"`
}

// FileInfo describes one finalized log file for listings.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}
