// Package models defines the core domain models for the settlement engine.
//
// # Ownership
//
// The engine owns exactly one entity:
//   - SettlementRecord: one charge-and-split attempt for an engagement
//
// Two collaborator entities are referenced, never owned:
//   - Engagement: the lesson being paid for; the engine only writes its
//     payment-status projection
//   - PayeeAccount: the tutor's connected processor account and its
//     eligibility flags
//
// # Design Principles
//
// 1. **Minor units everywhere**: all amounts are int64 cents, never floats
// 2. **Separate facts, separate fields**: "the charge succeeded" (Status)
//    and "the payout was transferred" (TransferRef) are independent facts
//    with independent write guards
// 3. **Avoid circular references**: relationships use ID strings, not pointers
// 4. **Append-only history**: settlement records are never deleted; terminal
//    states are permanent audit history
package models
