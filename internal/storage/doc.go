// Package storage keeps the record of flights that were already posted.
//
// The record serves two jobs:
//   - dedup: never post the same flight twice, even when the feed read-back
//     is stale or unavailable
//   - recovery: supply the last posted flight when the feed cannot be
//     listed (Telegram) or the account timeline is empty
package storage
