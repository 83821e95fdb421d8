// Package queryflow turns a natural-language request into a data-store
// query, runs it, and explains the result, recovering from rejected queries
// within a bounded retry budget.
//
// # Workflow
//
// A run moves through a fixed set of steps:
//
//	START ─► GENERATE ─► EXECUTE ─► ROUTE ─┬─► INTERPRET ─────────────► DONE
//	            ▲                          ├─► ANALYZE_ERROR ─┐
//	            └──────────────────────────┼──────────────────┘
//	                                       └─► MAX_RETRIES_EXCEEDED ─► DONE
//
// GENERATE is entered either after the schema loads (EventInitialLoad) or
// after a failed query has been diagnosed (EventErrorRecovered). ROUTE is a
// pure function of the retry policy, the budget, the retry counter and
// whether the last execution failed; see Route.
//
// # Collaborators
//
// The model and data-store services are consumed through the Generator,
// Executor, Diagnoser, Interpreter and SchemaSource interfaces. Executors
// report rejected queries as *QueryError, which the run records and retries.
// Any other service error stops the run with an *UpstreamError and does not
// consume a retry.
//
// # Quick start
//
//	chat, err := llm.NewChatModel(ctx, llm.ModelConfig{Provider: llm.ProviderOpenAI, Model: "gpt-4o-mini"})
//	if err != nil {
//	    return err
//	}
//	store, err := sqlexec.Open("sqlite", "sales.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	flow, err := queryflow.New(queryflow.Services{
//	    Schema:      schema.NewFileSource("schema.yaml"),
//	    Generator:   llm.NewGenerator(chat),
//	    Executor:    store,
//	    Diagnoser:   llm.NewDiagnoser(chat),
//	    Interpreter: llm.NewInterpreter(chat),
//	})
//	if err != nil {
//	    return err
//	}
//
//	res, err := flow.Run(queryflow.NewContext(ctx), "top five customers by revenue in 2024")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Status, res.Summary)
//
// # Checkpointing
//
// With WithCheckpointing and WithRunID a snapshot is saved after every step,
// and Flow.Resume continues an interrupted run from the latest one.
package queryflow
