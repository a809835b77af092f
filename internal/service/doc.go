// Package service contains the orchestration logic that composes the task
// store and the generation backend into conversation turns.
package service
