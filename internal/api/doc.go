// Package api hosts the HTTP server, middleware, and JSON handlers. Notable routes:
//   - POST /api/scraping/{platform} creates a scraping job.
//   - GET /api/scraping/jobs?jobId= and /api/scraping/jobs/{job_id} poll a job.
//   - POST/GET /api/campaigns, GET /api/usage, POST /api/suggestions.
//   - POST /api/webhooks/clerk receives signed Clerk webhooks.
//   - GET /healthz, /readyz, and /metrics for probes and Prometheus.
package api
