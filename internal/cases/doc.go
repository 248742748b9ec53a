// Package cases provides the business boundary for analysis cases. It
// defines the Service (dedup, lifecycle, async dispatch), Engine (one
// inference pass through the triage and referral pipeline), Store
// interface (persistence), and the case domain model.
package cases
