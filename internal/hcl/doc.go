// Package hcl loads .grid files: the HCL surface where users declare
// tasks, resource pools, and engine settings. Files are discovered
// recursively, parsed with hashicorp/hcl, and translated into the task
// and pool vocabulary the engine consumes.
package hcl
