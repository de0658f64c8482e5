// Package amazon talks to the Amazon selling partner API and runs the
// throttled stages that match Walmart items to ASINs and price them.
//
// Client wraps the catalog, pricing, fees and inventory endpoints. Worker
// turns each endpoint into a stage operation that writes its results and
// the matching refresh timestamps to the store.
package amazon
