// Package roast defines the types, collaborator interfaces, and error taxonomy
// shared by the roast-job pipeline: sessions, captured rasters, analysis
// results, and the stores and clients the orchestrator drives.
package roast
