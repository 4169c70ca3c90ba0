package llm

const (
	// GeneratePath is the relay endpoint that accepts a GenerateRequest and
	// returns a Reply, or a stream of chunks when streaming is requested.
	GeneratePath = "/api/generate"

	// HealthPath reports relay liveness.
	HealthPath = "/healthz"
)
