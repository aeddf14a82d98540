package assets

// Loader decodes one kind of asset file. The concrete type of the result depends on the loader.
type Loader interface {
	Load(path string) (interface{}, error)
}
