// Package queryir defines the backend-neutral filter and aggregation IR
// used by the record router.
//
// The workflow engine speaks a document-store filter dialect ($eq, $ne,
// $in, $exists) and simple aggregation pipelines. ParseFilter and
// ParsePipeline turn that dialect into sealed Go types, and backend
// compilers (see internal/querysql) translate the IR into their native
// query language.
//
// The router relies on the IR being composable: scoping a query to a dry
// run is just AllOf(Eq(runId), Eq(entityTag), userFilter), and scoping an
// aggregation is Pipeline.Prepend of the same conjunction.
package queryir
