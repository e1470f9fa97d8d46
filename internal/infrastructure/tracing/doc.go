/*
Package tracing provides lightweight request and render tracing.

Spans are created for every HTTP request and for every preview render.
Render spans record each pipeline stage (normalize, plan, compile,
synthesize, mount, preflight) in order with its duration, so a slow preview
can be attributed to a stage from the logs or from GET /traces.

	tracer := tracing.New("preview", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "render")
	start := time.Now()
	n := source.Normalize(bundle, profile)
	span.Stage("normalize", start)
	span.Finish()
	tracer.Submit(span)

Trace context travels in the X-Trace-ID and X-Span-ID headers.

Finished spans are buffered (1000) and written by one collector goroutine,
which also keeps the last DefaultRetain spans for Recent. Spans with an
error are logged at warn level, all others at debug.
*/
package tracing
