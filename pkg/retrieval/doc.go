// Package retrieval embeds the crossdock pipeline in another Go
// process. Chat bots and internal tools get the same department-scoped
// answers as the MCP server without speaking JSON-RPC: open a client
// over a knowledge tree, assign users to departments, and ask.
//
//	client, err := retrieval.Open(ctx, retrieval.Options{Dir: "/srv/depot"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	answer, err := client.Answer(ctx, telegramID, "как оформить возврат?")
//
// The client keeps its index in process memory. Each process builds its
// own snapshot on Open and rebuilds on demand; two processes over the
// same tree do not share index state, only files.
package retrieval
