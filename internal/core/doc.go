// Package core implements the bulk company import pipeline.
//
// An import turns a parsed spreadsheet into company records, one row at a
// time, in the background. The caller gets a session ID back immediately
// and can inspect, pause, resume or cancel the session while it runs.
//
// # Components
//
//   - [SessionStore]: the registry of import sessions ([MemoryStore]).
//   - [Mapper]: resolves free-text category and location names to reference
//     IDs (exact, then partial, then create).
//   - [ValidateRecord]: cleans a raw record into a [Company] and collects
//     non-fatal warnings.
//   - [MediaFetcher]: downloads a row's images into an [ImageStore].
//   - [CompanyProcessor]: validate, map, dedupe, persist and enrich one row.
//   - [Service]: owns the drivers and exposes the control surface.
//
// # Session lifecycle
//
//	running ──pause──▶ paused ──resume──▶ running
//	   │                  │
//	   ├──cancel──────────┴──▶ cancelled
//	   ├──all rows done──────▶ completed
//	   └──driver crash───────▶ failed
//
// Control calls only change the status. The driver is the single writer of
// the current index and the stats, and it observes status changes at row
// boundaries only. A terminal session never changes again.
//
// # Accounting
//
// Every row ends up in exactly one of successful, failed or skipped, so
// ProcessedRows always equals their sum. Failed and skipped rows are kept
// with their original data and a row number that is the zero-based record
// index plus [RowNumberOffset], matching the line in the source file.
//
// # Usage
//
//	store := core.NewMemoryStore()
//	factory := core.NewCompanyProcessorFactory(companies, refs, media)
//	svc := core.NewService(store, factory, core.ServiceConfig{})
//
//	id, err := svc.Start(ctx, core.StartRequest{Records: records, Settings: core.DefaultSettings()})
//	...
//	_ = svc.Pause(id)
//	_ = svc.Resume(id)
//	sess, _ := svc.Inspect(id)
package core
