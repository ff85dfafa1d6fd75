// Package agent contains engine implementations for the kernel and the
// plumbing to build more of them. The package focuses on three concerns:
//
//  1. Base lifecycle and dispatch plumbing (Base)
//  2. A model-centric conversational engine (ChatAgent, id "ai")
//  3. Small domain engines: VaultAgent, BuilderAgent and FilingAgent
//
// Design principles:
//   - Engines never drive their own lifecycle; the kernel calls Start, Stop,
//     Pause and Resume
//   - Work runs asynchronously in response to agent:{id}:execute events and
//     is answered on agent:{id}:response or agent:{id}:error
//   - Extensibility: embed *Base and register an ActionFunc per action
//
// Model specifics stay in the model package to avoid vendor coupling.
package agent
