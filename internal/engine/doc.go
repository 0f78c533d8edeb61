// Package engine drives the staged execution of compiled plans.
//
// A plan is a list of levels, leaf first. The engine runs the queries of
// one level concurrently through the Executor registered for the level's
// type, waits for all of them, and hands their results to the next level as
// inputs. The level barrier is the only synchronization point: queries of
// one level never depend on each other.
//
// Failure handling:
//   - the first failing query cancels its running siblings, no higher level
//     starts, and the error is returned as an ExecutionError
//   - results are staged during the run and written to the Cache only after
//     the whole plan succeeded
//   - planning invariant violations are logged with the plan and surface as
//     an opaque InternalError (see Boundary)
//
// Timeouts and retries belong to the executors.
package engine
