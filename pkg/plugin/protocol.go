// Package plugin provides the public API for shutter plugins.
package plugin

// EntryType names how a plugin is instantiated by the loader.
type EntryType = string

const (
	// EntryTypeGoPlugin indicates an out-of-process plugin speaking the
	// HashiCorp go-plugin RPC protocol. The descriptor's DLLFile is the binary.
	EntryTypeGoPlugin EntryType = "go-plugin"
)
