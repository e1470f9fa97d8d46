/*
Package monitoring provides Prometheus metrics for the preview service.

# Overview

Metrics live in a registry owned by each Metrics value. The collector is a
session Observer, so renders, compilation outcomes and compiler state
transitions are recorded as the pipeline runs.

# Features

- HTTP request metrics (latency, throughput, size)
- Syntheses by profile and document kind, render latency
- Compilation results and transpiler readiness
- Console entries by level and origin, scene export results
- Gauges sampled at scrape time (live object-URLs, suppressed duplicates)
- WebSocket connection metrics and uptime

# Usage

	metrics := monitoring.NewMetrics()
	defer metrics.Close()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.WatchFuncs(map[string]func() float64{
		"object_urls_live": func() float64 { return float64(blobs.Live()) },
	})
*/
package monitoring
