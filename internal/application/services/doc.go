// Package services provides the business logic layer for the PulseCRM sync
// engine.
//
// This package contains all service implementations that handle:
//   - Durable mutation queueing and at-least-once flushing (SyncService)
//   - Upstream CRM delivery over REST with rate limiting (UpstreamClient)
//   - Upstream reachability probing and flush triggering (ConnectivityMonitor)
//   - Expression-based priority assignment (PriorityRuleEngine)
//   - Device registration and token issuance (AuthService)
//   - Scheduled queue maintenance (Janitor)
//
// All services follow clean architecture principles with dependency injection
// and are designed to be testable and maintainable.
package services
