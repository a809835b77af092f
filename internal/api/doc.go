// Package api provides HTTP handlers exposing the task orchestration
// service over a JSON API.
package api
