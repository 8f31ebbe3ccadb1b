package adapters

// Default returns the registry of every ecosystem adapter this module
// ships.
func Default() *Registry {
	return NewRegistry(
		NewCargoAdapter(),
		NewNPMAdapter(),
		NewHexAdapter(),
		NewPyPIAdapter(),
		NewPackagistAdapter(),
	)
}
