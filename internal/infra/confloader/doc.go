// Package confloader loads configuration with koanf.
//
// Sources, later overriding earlier:
//
//  1. the target struct's current values (defaults)
//  2. a YAML file
//  3. NODEMESH_ environment variables
//
// Environment names are matched against the koanf keys of the target, so
// NODEMESH_CLUSTER_SOFT_DISCONNECT sets cluster.soft_disconnect. Names that
// match no key have every underscore turned into a dot.
//
// Watcher reports changes of a configuration file for hot reload.
package confloader
