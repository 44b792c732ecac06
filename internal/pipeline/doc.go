// Package pipeline runs a mirror session as a sequence of steps.
//
// A session flows through: mirror (crawl the seeds into a resource graph),
// export (write the graph to disk), titles (collect page titles), persist
// (store the session in the history database) and report (render a
// summary). Each stage is a Step that receives the current
// model.MirrorReport and can modify it. Every step run is recorded in
// MirrorReport.Steps.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. Steps whose destination is not configured are simply left out
// 2. Error handling and logging are the same for every step
// 3. An interrupt can stop the crawl while the finishing steps still run
//
// Several sites are mirrored concurrently by a BatchProcessor; GroupSeeds
// turns a list of seed URLs into sites, one per host.
package pipeline
