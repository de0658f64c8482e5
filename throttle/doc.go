// Package throttle holds per-operation call quotas.
//
// A Bucket starts full and only two things move its level: TryConsume takes
// exactly n tokens or nothing, and Refill adds the refill rate up to the
// capacity. Refill is driven from outside by a Refiller ticking every bucket
// on one period, which mirrors how marketplace APIs restore request quota.
// Levels are decimals so fractional rates such as 0.2 accumulate exactly.
package throttle
