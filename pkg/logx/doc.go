// Package logx configures tailbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional operator-notification sink (min-level + rate limiting)
//     whose target is installed late via Service.SetNotifier
package logx
