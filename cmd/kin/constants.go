package main

// Output formats.
var (
	exportFormats    = []string{"json", "csv"}
	relationsFormats = []string{"tree", "list", "json"}
)

// defaultTreeName is the tree 'kin init' creates when none is named.
const defaultTreeName = "family"

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
