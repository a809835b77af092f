// Package events provides types and interfaces for an event-driven architecture.
//
// This package defines event types and handler interfaces that allow for loose
// coupling between components in the system. The orchestration service emits
// task lifecycle events without knowing which handlers will process them,
// enabling better separation of concerns and reducing circular dependencies.
package events
