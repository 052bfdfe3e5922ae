// Package kind defines the objects an apartment host can construct, the
// registry that names them, and the built-in kinds. Objects are not safe for
// concurrent use; the host confines each one to its apartment's worker.
package kind
