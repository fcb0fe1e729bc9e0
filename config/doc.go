// Package config loads wasmpost.toml.
//
// The file is found by walking up from the working directory. Every key is
// optional; missing keys keep their defaults:
//
//	[log]
//	level = "info"        # zap level
//	format = "json"       # console or json
//
//	[passes]
//	run = ["export-indirect-table"]
//
//	[toolchain]
//	use_system = false
//	target_webasm = true
//	cache_dir = ".cache/wasmpost"   # relative to the file
//
//	[verify]
//	enabled = true
//	compiler = "interpreter"        # auto, compiler or interpreter
//
// Unknown keys and unknown pass names are rejected.
package config
