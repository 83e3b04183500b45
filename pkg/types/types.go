package types

// ModelKind distinguishes generation models from embedding models.
type ModelKind string

const (
	KindGeneration ModelKind = "generation"
	KindEmbedding  ModelKind = "embedding"
)

// Model represents a discoverable model file on disk.
type Model struct {
	// Filename of the model, unique within its kind.
	// example: qwen2-7b-instruct-q4_k_m.gguf
	Name string `json:"name" example:"qwen2-7b-instruct-q4_k_m.gguf"`
	// Absolute path to the model file.
	Path string `json:"path"`
	// Whether the file is a generation or an embedding model.
	Kind ModelKind `json:"kind"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the streaming chat payload sent to the inference side.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	SessionID string        `json:"session_id,omitempty"`
}

// StreamFrame is one NDJSON line of a chat stream. Exactly one of Token
// or Error is set per frame; the stream ends at transport EOF.
type StreamFrame struct {
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

// SwitchModelRequest asks the inference side to load a different model.
type SwitchModelRequest struct {
	ModelName string    `json:"model_name"`
	ModelType ModelKind `json:"model_type"`
}

// SwitchModelResponse acknowledges a switch request. Success means the
// load was started or the model was already loaded; the actual load runs
// in the background and is observed via /status.
type SwitchModelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ModelListResponse is returned by GET /v1/models.
type ModelListResponse struct {
	GenerationModels       []string `json:"generation_models"`
	EmbeddingModels        []string `json:"embedding_models"`
	CurrentGenerationModel string   `json:"current_generation_model"`
	CurrentEmbeddingModel  string   `json:"current_embedding_model"`
	// Compute device descriptor, e.g. "cpu" or "gpu".
	Device string `json:"device"`
}

// EmbeddingsRequest asks for one vector per input text, order-preserving.
type EmbeddingsRequest struct {
	Texts []string `json:"texts"`
}

// EmbeddingsResponse carries vectors in the same order as the request texts.
type EmbeddingsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
