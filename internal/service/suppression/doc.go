// Package suppression implements the suppression list service.
//
// This is the single source of truth for whether an address should receive
// mail. Records are created from normalized provider events (bounces,
// complaints, unsubscribes) and removed by explicit admin action only.
//
// Applying the same event twice, or events in any order, converges on the
// same record: FirstSeen is the earliest observation and LastSeen the
// latest. That property is what lets the analytics poller re-read
// overlapping windows safely.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
