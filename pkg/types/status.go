package types

// SlotStatus describes one model slot (generation or embedding).
type SlotStatus struct {
	// Lifecycle status: idle, loading, ready or error.
	// example: ready
	Status string `json:"status" example:"ready"`
	// Name of the currently loaded model, empty when none.
	Current string `json:"current,omitempty"`
	// Name of the model being loaded while status is "loading".
	Loading string `json:"loading,omitempty"`
	// Retained detail of the last load failure.
	LastError string `json:"last_error,omitempty"`
	// Unix seconds of the last completed load.
	LoadedAt int64 `json:"loaded_at_unix,omitempty"`
}

// StatusResponse is returned by GET /status on the inference side.
type StatusResponse struct {
	Generation SlotStatus `json:"generation"`
	Embedding  SlotStatus `json:"embedding"`
	// Compute device descriptor.
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total number of completed model loads.
	LoadsTotal uint64 `json:"loads_total"`
	// Total number of streamed chat turns served.
	ChatsTotal uint64 `json:"chats_total"`
}
