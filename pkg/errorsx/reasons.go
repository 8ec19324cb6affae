package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Recoverable tool dispatch failures. These never leave the loop; they
	// become the content of a function result message.
	ReasonUnknownTool        ReasonCode = "unknown_tool"
	ReasonMalformedArguments ReasonCode = "malformed_arguments"
	ReasonArgumentMismatch   ReasonCode = "argument_mismatch"
	ReasonToolExecution      ReasonCode = "tool_execution"

	ReasonModelGateway   ReasonCode = "model_gateway"
	ReasonModelRateLimit ReasonCode = "model_rate_limit"
	ReasonMaxIterations  ReasonCode = "max_iterations"

	ReasonEmbedding   ReasonCode = "embedding"
	ReasonIndexUpload ReasonCode = "index_upload"
	ReasonIndexQuery  ReasonCode = "index_query"

	ReasonConfig ReasonCode = "config"
)

// Recoverable reports whether a reason belongs to the tool dispatch taxonomy
// that is surfaced to the model as text instead of failing the run.
func (r ReasonCode) Recoverable() bool {
	switch r {
	case ReasonUnknownTool, ReasonMalformedArguments, ReasonArgumentMismatch, ReasonToolExecution:
		return true
	}
	return false
}
