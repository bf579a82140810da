// Package api hosts the HTTP server for roast submission and polling.
// Notable routes:
//   - POST /roast to submit a URL, GET /roast/{sessionId}/status to poll.
//   - POST /roast/{sessionId}/report for the PDF report of a finished roast.
//   - GET /roasts/gallery for the most recent captures.
//   - GET /voice/signed-url and POST /voice/context for the voice agent.
//   - GET /healthz, /readyz and /metrics for operators.
package api
