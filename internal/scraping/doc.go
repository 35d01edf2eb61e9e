// Package scraping defines the domain types and ports shared by the job
// dispatcher, plan enforcement, the status reader, and the storage adapters.
package scraping
