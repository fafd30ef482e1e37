// Package core implements the compile pipeline behind the c3ffi build facade.
//
// # Pipeline
//
// A Compiler runs one Request through:
//
//  1. Toolchain lookup (once per session, see toolchain.Session)
//  2. Output path claim in the Registry (rejects concurrent duplicates)
//  3. Source resolution (SourceResolver)
//  4. Argument construction (BuildInvocation, a pure function)
//  5. Optional cache lookup keyed by argv + source stamps
//  6. Subprocess execution (Executor)
//  7. Diagnostic classification (ParseDiagnostics)
//  8. Artifact registration, only after a zero exit and a present output file
//
// # Core Types
//
// Request: what to compile and how.
// Invocation: the argument vector for one toolchain run.
// ExecutionResult: exit code, captured streams and duration of one run.
// Diagnostic: one classified toolchain message.
// Artifact: a produced object file or library.
package core
