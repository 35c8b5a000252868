// Package core provides the analytics and report lifecycle logic for
// equipment telemetry uploads.
//
// The package has no transport or database dependencies. The web server,
// the admin CLI and tests all drive it through [Service] with a [Store],
// a [Renderer] and an optional [RawStore].
//
// # Analysis
//
// [Analyze] parses a CSV with the columns Equipment Name, Type, Flowrate,
// Pressure and Temperature. Column matching is exact. A missing column yields
// a [*SchemaError] listing every missing name; a non-numeric value in a
// numeric column yields a [*CoercionError] naming the column. Analysis is
// all-or-nothing.
//
// [Summarize] computes totals, overall means and per-type counts and means.
// [AnalyzeSubset] does the same over the leading rows of a dataset in file
// order and adds the maximum temperature.
//
// # Ingestion and Retention
//
// [Service.Ingest] analyzes an upload, stores the dataset and its rows in one
// transaction and then prunes the user's datasets to the newest
// [DefaultRetentionKeep]. [Prune] decides which ids go; the store cascades
// deletion to rows and reports.
//
// # Reports
//
// Each dataset has at most one report. [Service.GetOrCreateReport] renders a
// fresh PDF on every call. The first call numbers the report with
// [NextReportNumber] inside a per-user locked transaction; later calls
// overwrite the PDF and keep the number.
//
// # Error Handling
//
// Errors are matched with errors.Is against [ErrFormat], [ErrSchema],
// [ErrCoercion], [ErrNotFound], [ErrConflict] and [ErrRender]. [MapError]
// turns any error into a [UserMessage] with a support code:
//
//   - VAL001-VAL002: missing columns and non-numeric values
//   - FILE001-FILE005: size, format, extension and empty uploads
//   - DS001, RPT001: unknown dataset, report rendering failure
//   - DB001-DB007: database errors
//   - UPL002-UPL005: busy limiter, cancelled or timed out requests
package core
