package config

import "os"

// ExpandEnv expands ${VAR}/$VAR references in raw YAML bytes using the
// standard library's shell-style expansion, matching the teacher's
// pkg/config/envexpand.go. Missing variables expand to empty string;
// validation is responsible for catching any resulting empty required field.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
