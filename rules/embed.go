// Package rules embeds the document scanning rules shipped with
// controldesk. They are loaded alongside Aguara's built-in rules.
package rules

import "embed"

//go:embed *.yaml
var embedded embed.FS

// FS returns the embedded rule files.
func FS() embed.FS {
	return embedded
}
