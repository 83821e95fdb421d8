// Package llm implements the generation, diagnosis and interpretation
// services of a query run on top of eino chat models.
//
// Each role renders a system and a user prompt, asks the model for one JSON
// object and validates the reply against a JSON Schema derived from the
// role's output type. The schema is also embedded in the system prompt so
// the model sees the exact contract it is held to.
//
// Models come from NewChatModel, which supports OpenAI, Anthropic Claude,
// Ollama, Qwen, ARK and DeepSeek through eino-ext, and the local Claude CLI
// through ClaudeCLI:
//
//	chat, err := llm.NewChatModel(ctx, llm.ModelConfig{
//	    Provider: llm.ProviderOpenAI,
//	    APIKey:   os.Getenv("OPENAI_API_KEY"),
//	    Model:    "gpt-4.1",
//	})
//	if err != nil {
//	    return err
//	}
//
//	flow, err := queryflow.New(queryflow.Services{
//	    Generator:   llm.NewGenerator(chat),
//	    Diagnoser:   llm.NewDiagnoser(chat),
//	    Interpreter: llm.NewInterpreter(chat),
//	    ...
//	})
//
// Model failures and replies that break the contract are returned as
// *queryflow.UpstreamError. Replies that break the contract also match
// queryflow.ErrMalformedOutput.
package llm
