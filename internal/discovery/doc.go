// Package discovery locates HDHomeRun devices and keeps their records
// fresh.
//
// Two transports feed the same device model. The UDP scanner broadcasts
// a discovery request on port 65001 and collects TLV reply datagrams for
// a fixed window. The HTTP client queries the vendor directory service
// and the JSON endpoints each device serves (discover.json, lineup.json,
// lineup_status.json, status.json).
//
// The Service ties the two together: a discovery pass runs both
// transports concurrently, deduplicates by device id with HTTP fields
// taking precedence, and finishes with a best-effort per-device HTTP
// rediscover to backfill metadata. It also exposes the per-device
// refresh operations (details, tuner status, restart, channel scans).
//
//	svc := discovery.NewService()
//	devices, err := svc.Discover(ctx)
//	for _, d := range devices {
//	    svc.RefreshTunerStatus(ctx, d)
//	}
//
// Refresh failures are absorbed: a device that stops answering is
// marked offline rather than turning into an error the caller has to
// handle. Only user commands (restart, channel scan) propagate errors.
package discovery
