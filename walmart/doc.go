// Package walmart searches the Walmart catalog one taxonomy subcategory at a
// time and feeds the results into the store.
//
// Client pages through a subcategory's bestsellers. Worker is the work
// function of the wm stage: it keeps the run under the daily call limit,
// stores what the search found and records the outcome on the subcategory
// so the backing query moves on.
package walmart
