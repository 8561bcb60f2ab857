// Package invoke performs job actions as outbound HTTP calls and classifies
// each response as success, target-not-found or failure.
package invoke
