// Package llmtape provides in-process capture and replay of LLM API
// calls for Go agents, without running the proxy binary. A recording
// transport forwards calls to the real API and writes each completed
// pair to a session file; a replay transport answers the same calls
// from the file, offline.
//
// Usage:
//
//	rec, err := llmtape.Record()
//	client := &http.Client{Transport: rec.Transport()}
//	// ... drive the agent ...
//	err = rec.Seal()
//
//	rep, err := llmtape.Replay(llmtape.WithSession(rec.ID()))
//	client = &http.Client{Transport: rep.Transport()}
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/ppiankov/llmtape/sdk/go/llmtape.
package llmtape
