// Package app composes the SeaNotes backend into a running application.
//
// # Architecture Role
//
// The app package wires domain services to their stores and external adapters
// and owns their lifecycle. Business rules live in internal/app/services/;
// this package only decides which implementation backs each dependency.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, adapter selection, lifecycle
//	├── stores.go           # PostgreSQL store wiring
//	├── domain/             # Pure data: user, subscription, note, environment, invoice
//	├── storage/            # Store interfaces
//	│   ├── memory/         # In-memory stores for development and tests
//	│   └── postgres/       # PostgreSQL stores (sqlx)
//	├── services/           # Notes, auth, users, AI, QA, billing, invoices, status...
//	├── jobs/               # Cron scheduled maintenance
//	├── system/             # Service manager and background task runner
//	└── httpapi/            # REST routes, handlers and the HTTP server service
//
// # Adapter Selection
//
// Every external integration degrades instead of failing startup:
//
//	┌──────────────┬──────────────────────────────┬──────────────────────────┐
//	│ Concern      │ Configured                   │ Fallback                 │
//	├──────────────┼──────────────────────────────┼──────────────────────────┤
//	│ AI           │ OpenAI compatible or Gemini  │ disabled (timestamp      │
//	│              │                              │ titles, QA returns 503)  │
//	│ Billing      │ Stripe                       │ local catalogue          │
//	│ Object store │ Spaces (minio)               │ memory outside production│
//	│ E-mail       │ Resend                       │ disabled                 │
//	│ Rate limits  │ Redis                        │ process memory           │
//	└──────────────┴──────────────────────────────┴──────────────────────────┘
//
// # Lifecycle
//
// Services start in registration order and stop in reverse:
//
//	events hub → background runner → cache janitors → initial status check → jobs → http
//
// cmd/seanotes attaches the HTTP server last so it drains first on shutdown.
package app
